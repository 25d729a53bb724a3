package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/masterdata"
	"github.com/loomline-erp/loomline-erp/internal/observability"
	"github.com/loomline-erp/loomline-erp/internal/procurement"
	"github.com/loomline-erp/loomline-erp/internal/production"
	"github.com/loomline-erp/loomline-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Pool               *pgxpool.Pool
	Metrics            *observability.Metrics
	InventoryHandler   *inventory.Handler
	ProcurementHandler *procurement.Handler
	ProductionHandler  *production.Handler
	MasterDataHandler  *masterdata.Handler
	JobsHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with Loomline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(params.Metrics.Middleware)
	r.Use(chimw.Logger)

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Error("readiness ping failed", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			params.InventoryHandler.MountRoutes(g)
		})
		api.Group(func(g chi.Router) {
			params.ProcurementHandler.MountRoutes(g)
		})
		api.Group(func(g chi.Router) {
			params.ProductionHandler.MountRoutes(g)
		})
		api.Route("/masterdata", func(g chi.Router) {
			params.MasterDataHandler.MountRoutes(g)
		})
		if params.JobsHandler != nil {
			api.Route("/jobs", func(g chi.Router) {
				params.JobsHandler.MountRoutes(g)
			})
		}
	})

	return r
}
