package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finance-datalayer/internal/cache"
	"finance-datalayer/internal/config"
	"finance-datalayer/internal/localstore"
	syncmgr "finance-datalayer/internal/sync"
)

// SyncController is the part of the data layer exposed over HTTP.
type SyncController interface {
	SyncStatus() syncmgr.Status
	PendingOperations() []syncmgr.PendingOperation
	ForceSyncAll(ctx context.Context) error
	RemovePendingOperation(ctx context.Context, id string) (bool, error)
	CacheStats() cache.Stats
}

type Handler struct {
	local *localstore.LocalStore
	sync  SyncController
	cfg   config.ServerConfig
	now   func() time.Time
}

func NewHandler(local *localstore.LocalStore, sync SyncController, cfg config.ServerConfig) *Handler {
	return &Handler{
		local: local,
		sync:  sync,
		cfg:   cfg,
		now:   time.Now,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Route("/v1/sync", func(r chi.Router) {
			r.Get("/status", h.GetSyncStatus)
			r.Post("/trigger", h.TriggerSync)
			r.Get("/pending", h.ListPending)
			r.Delete("/pending/{id}", h.RemovePending)
		})

		r.Route("/{resource}", func(r chi.Router) {
			r.Get("/", h.ListResources)
			r.Post("/", h.CreateResource)
			r.Get("/{id}", h.GetResource)
			r.Put("/{id}", h.UpdateResource)
			r.Patch("/{id}", h.UpdateResource)
			r.Delete("/{id}", h.DeleteResource)
		})
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
