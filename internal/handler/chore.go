package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/dukerupert/chorekeeper/internal/workflow"
)

type ChoreHandler struct {
	mgr    *workflow.Manager
	locker *workflow.Locker
	logger *slog.Logger
}

func NewChoreHandler(mgr *workflow.Manager, locker *workflow.Locker, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{mgr: mgr, locker: locker, logger: logger}
}

type choreRequest struct {
	Name         string                   `json:"name"`
	Points       int                      `json:"points"`
	Criteria     model.CompletionCriteria `json:"completion_criteria"`
	ResetPolicy  model.ResetPolicy        `json:"reset_policy"`
	Assignees    []string                 `json:"assigned_user_ids"`
	Rule         string                   `json:"recurrence_rule"`
	Start        *time.Time               `json:"schedule_start"`
	Timezone     string                   `json:"timezone"`
	DueWithin    string                   `json:"due_within"`
	DueSoon      string                   `json:"due_soon"`
	Grace        string                   `json:"grace"`
	DueOverrides map[string]time.Time     `json:"due_overrides"`
}

// chore converts the request. Durations use Go syntax ("18h", "90m").
func (req choreRequest) chore() (model.Chore, string) {
	c := model.Chore{
		Name:        req.Name,
		Points:      req.Points,
		Criteria:    req.Criteria,
		ResetPolicy: req.ResetPolicy,
		Assignees:   req.Assignees,
		Schedule: model.Schedule{
			Rule:         strings.TrimSpace(req.Rule),
			DueOverrides: req.DueOverrides,
		},
	}
	if req.Start != nil {
		c.Schedule.Start = *req.Start
	}
	if req.Timezone != "" {
		loc, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return c, "unknown timezone"
		}
		if c.Schedule.Start.IsZero() {
			c.Schedule.Start = time.Now().In(loc)
		} else {
			c.Schedule.Start = c.Schedule.Start.In(loc)
		}
	}

	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{req.DueWithin, &c.Schedule.DueWithin, "due_within"},
		{req.DueSoon, &c.Schedule.DueSoon, "due_soon"},
		{req.Grace, &c.Schedule.Grace, "grace"},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return c, "invalid " + d.name
		}
		*d.dst = v
	}
	return c, ""
}

func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	board, err := h.mgr.Board(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to list chores", err)
		return
	}
	if board == nil {
		board = []workflow.Outcome{}
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *ChoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	out, err := h.mgr.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "failed to get chore", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req choreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, problem := req.chore()
	if problem != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": problem})
		return
	}

	created, err := h.mgr.CreateChore(r.Context(), actorID(r), c)
	if err != nil {
		writeError(w, h.logger, "failed to create chore", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req choreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, problem := req.chore()
	if problem != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": problem})
		return
	}
	c.ID = r.PathValue("id")

	unlock := h.locker.Lock(c.ID)
	defer unlock()

	updated, err := h.mgr.UpdateChore(r.Context(), actorID(r), c)
	if err != nil {
		writeError(w, h.logger, "failed to update chore", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	unlock := h.locker.Lock(id)
	defer unlock()

	if err := h.mgr.DeleteChore(r.Context(), actorID(r), id); err != nil {
		writeError(w, h.logger, "failed to delete chore", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assigneesRequest struct {
	UserIDs      []string             `json:"assigned_user_ids"`
	DueOverrides map[string]time.Time `json:"due_overrides"`
}

func (h *ChoreHandler) SetAssignees(w http.ResponseWriter, r *http.Request) {
	var req assigneesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	unlock := h.locker.Lock(id)
	defer unlock()

	c, err := h.mgr.SetAssignees(r.Context(), actorID(r), id, req.UserIDs, req.DueOverrides)
	if err != nil {
		writeError(w, h.logger, "failed to set assignees", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type transitionRequest struct {
	AssigneeID string `json:"assignee_id"`
	Cycle      string `json:"cycle"`
}

// readTransition tolerates an empty body: no cycle means the current one.
func readTransition(w http.ResponseWriter, r *http.Request) (transitionRequest, bool) {
	var req transitionRequest
	if r.ContentLength == 0 {
		return req, true
	}
	return req, decodeJSON(w, r, &req)
}

func (h *ChoreHandler) Claim(w http.ResponseWriter, r *http.Request) {
	req, ok := readTransition(w, r)
	if !ok {
		return
	}
	h.transition(w, r, "failed to claim chore", func(id string) (*workflow.Outcome, error) {
		return h.mgr.Claim(r.Context(), actorID(r), id, req.Cycle)
	})
}

func (h *ChoreHandler) Approve(w http.ResponseWriter, r *http.Request) {
	req, ok := readTransition(w, r)
	if !ok {
		return
	}
	h.transition(w, r, "failed to approve chore", func(id string) (*workflow.Outcome, error) {
		return h.mgr.Approve(r.Context(), actorID(r), id, req.AssigneeID, req.Cycle)
	})
}

func (h *ChoreHandler) Disapprove(w http.ResponseWriter, r *http.Request) {
	req, ok := readTransition(w, r)
	if !ok {
		return
	}
	h.transition(w, r, "failed to disapprove chore", func(id string) (*workflow.Outcome, error) {
		return h.mgr.Disapprove(r.Context(), actorID(r), id, req.AssigneeID, req.Cycle)
	})
}

func (h *ChoreHandler) Reset(w http.ResponseWriter, r *http.Request) {
	req, ok := readTransition(w, r)
	if !ok {
		return
	}
	h.transition(w, r, "failed to reset chore", func(id string) (*workflow.Outcome, error) {
		return h.mgr.Reset(r.Context(), actorID(r), id, req.AssigneeID, req.Cycle)
	})
}

func (h *ChoreHandler) transition(w http.ResponseWriter, r *http.Request, msg string, apply func(id string) (*workflow.Outcome, error)) {
	id := r.PathValue("id")
	unlock := h.locker.Lock(id)
	out, err := apply(id)
	unlock()
	if err != nil {
		writeError(w, h.logger, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
