package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/chorekeeper/internal/backup"
	"github.com/dukerupert/chorekeeper/internal/model"
	"github.com/dukerupert/chorekeeper/internal/store"
)

// BackupHandler exposes on-demand snapshots to host admins.
type BackupHandler struct {
	snap    *backup.Snapshotter
	backups *store.BackupStore
	logger  *slog.Logger
}

func NewBackupHandler(snap *backup.Snapshotter, backups *store.BackupStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{snap: snap, backups: backups, logger: logger}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	list, err := h.backups.List(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, "failed to list backups", err)
		return
	}
	if list == nil {
		list = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	b, err := h.snap.Snapshot(r.Context(), "manual")
	if err != nil {
		writeError(w, h.logger, "backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}
