package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paystream-io/paystream/internal/observability"
	"github.com/paystream-io/paystream/internal/payroll"
	"github.com/paystream-io/paystream/internal/recovery"
	"github.com/paystream-io/paystream/internal/treasury"
	"github.com/paystream-io/paystream/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	PayrollHandler  *payroll.Handler
	TreasuryHandler *treasury.Handler
	RecoveryHandler *recovery.Handler
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
	Pool            *pgxpool.Pool
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(params.Config, params.Logger))
			r.Route("/payroll", params.PayrollHandler.AdminRoutes)
			if params.TreasuryHandler != nil {
				r.Route("/treasury", params.TreasuryHandler.Routes)
			}
			if params.RecoveryHandler != nil {
				r.Route("/recovery", params.RecoveryHandler.Routes)
			}
		})
		r.Route("/employee", func(r chi.Router) {
			r.Use(CallerIdentity(params.Config))
			params.PayrollHandler.EmployeeRoutes(r)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
