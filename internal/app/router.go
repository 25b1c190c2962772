package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/portagency/pdadesk/internal/audit"
	"github.com/portagency/pdadesk/internal/auth"
	"github.com/portagency/pdadesk/internal/calculations"
	"github.com/portagency/pdadesk/internal/masterdata"
	"github.com/portagency/pdadesk/internal/observability"
	"github.com/portagency/pdadesk/internal/pda"
	"github.com/portagency/pdadesk/internal/pilotage"
	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/jobs"
)

// Pinger reports database reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	DB      Pinger
	Tokens  *auth.Tokens
	Metrics *observability.Metrics

	AuthHandler         *auth.Handler
	CalculationsHandler *calculations.Handler
	PilotageHandler     *pilotage.Handler
	PDAHandler          *pda.Handler
	MasterDataHandler   *masterdata.Handler
	AuditHandler        *audit.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthz(params.DB, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.Protect(params.Tokens, params.Logger))

			if params.CalculationsHandler != nil {
				r.Route("/calculations", params.CalculationsHandler.MountRoutes)
			}
			if params.PilotageHandler != nil {
				r.Route("/pilotage", params.PilotageHandler.MountRoutes)
			}
			if params.PDAHandler != nil {
				r.Route("/pda", params.PDAHandler.MountRoutes)
			}
			if params.MasterDataHandler != nil {
				params.MasterDataHandler.MountRoutes(r)
			}
			if params.AuditHandler != nil {
				r.Route("/logs", params.AuditHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})

	return r
}

func healthz(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				logger.Warn("healthz: database unreachable", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "down"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
