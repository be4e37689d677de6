package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kasirpos/kasirpos/internal/auth"
	"github.com/kasirpos/kasirpos/internal/catalog"
	"github.com/kasirpos/kasirpos/internal/inventory"
	"github.com/kasirpos/kasirpos/internal/pos"
	"github.com/kasirpos/kasirpos/internal/purchasing"
	"github.com/kasirpos/kasirpos/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionManager    *shared.SessionManager
	AuthHandler       *auth.Handler
	POSHandler        *pos.Handler
	CatalogHandler    *catalog.Handler
	InventoryHandler  *inventory.Handler
	PurchasingHandler *purchasing.Handler
	Pool              *pgxpool.Pool
}

// NewRouter constructs the chi.Router with kasirpos defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(public chi.Router) {
		params.AuthHandler.MountPublicRoutes(public)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(RequireOperator)

		params.AuthHandler.MountRoutes(api)
		params.POSHandler.MountRoutes(api)
		params.CatalogHandler.MountRoutes(api)
		params.InventoryHandler.MountRoutes(api)
		params.PurchasingHandler.MountRoutes(api)
	})

	return r
}
