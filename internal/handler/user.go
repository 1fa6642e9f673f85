package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/dukerupert/chorekeeper/internal/store"
	"github.com/dukerupert/chorekeeper/internal/workflow"
)

type UserHandler struct {
	mgr    *workflow.Manager
	users  *store.UserStore
	locker *workflow.Locker
	logger *slog.Logger
}

func NewUserHandler(mgr *workflow.Manager, users *store.UserStore, locker *workflow.Locker, logger *slog.Logger) *UserHandler {
	return &UserHandler{mgr: mgr, users: users, locker: locker, logger: logger}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, h.logger, "failed to list users", err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// Me returns the authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), actorID(r))
	if err != nil {
		writeError(w, h.logger, "failed to get user", err)
		return
	}
	if u == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type userRequest struct {
	DisplayName string          `json:"display_name"`
	Profile     json.RawMessage `json:"profile"`
	model.Capabilities
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.mgr.CreateUser(r.Context(), actorID(r), model.User{
		DisplayName:   req.DisplayName,
		CanBeAssigned: req.CanBeAssigned,
		CanApprove:    req.CanApprove,
		CanManage:     req.CanManage,
		Profile:       req.Profile,
	})
	if err != nil {
		writeError(w, h.logger, "failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *UserHandler) UpdateCapabilities(w http.ResponseWriter, r *http.Request) {
	var caps model.Capabilities
	if !decodeJSON(w, r, &caps) {
		return
	}
	id := r.PathValue("id")
	unlock, err := h.mgr.LockUserChores(r.Context(), h.locker, id)
	if err != nil {
		writeError(w, h.logger, "failed to update capabilities", err)
		return
	}
	defer unlock()

	u, err := h.mgr.UpdateCapabilities(r.Context(), actorID(r), id, caps)
	if err != nil {
		writeError(w, h.logger, "failed to update capabilities", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	unlock, err := h.mgr.LockUserChores(r.Context(), h.locker, id)
	if err != nil {
		writeError(w, h.logger, "failed to remove user", err)
		return
	}
	defer unlock()

	if err := h.mgr.RemoveUser(r.Context(), actorID(r), id); err != nil {
		writeError(w, h.logger, "failed to remove user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
