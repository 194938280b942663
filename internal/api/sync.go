package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	syncmgr "finance-datalayer/internal/sync"
)

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sync":  h.sync.SyncStatus(),
		"cache": h.sync.CacheStats(),
	})
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	err := h.sync.ForceSyncAll(r.Context())
	if errors.Is(err, syncmgr.ErrOffline) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "sync": h.sync.SyncStatus()})
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": h.sync.PendingOperations()})
}

func (h *Handler) RemovePending(w http.ResponseWriter, r *http.Request) {
	removed, err := h.sync.RemovePendingOperation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.internalError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "pending operation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
