package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	analytichttp "github.com/odyssey-erp/odyssey-wms/internal/analytics/http"
	audithttp "github.com/odyssey-erp/odyssey-wms/internal/audit/http"
	"github.com/odyssey-erp/odyssey-wms/internal/ledger"
	"github.com/odyssey-erp/odyssey-wms/internal/observability"
	"github.com/odyssey-erp/odyssey-wms/internal/picking"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/receiving"
	"github.com/odyssey-erp/odyssey-wms/internal/scanning"
	"github.com/odyssey-erp/odyssey-wms/jobs"
)

// Pinger reports backing store reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	LedgerHandler    *ledger.Handler
	ScanHandler      *scanning.Handler
	ReceivingHandler *receiving.Handler
	PickingHandler   *picking.Handler
	AnalyticsHandler *analytichttp.Handler
	AuditHandler     *audithttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Readiness        map[string]Pinger
}

// NewRouter constructs the chi.Router with warehouse defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Readiness))

	r.Route("/warehouse", func(r chi.Router) {
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.ScanHandler != nil {
			params.ScanHandler.MountRoutes(r)
		}
		if params.ReceivingHandler != nil {
			r.Route("/receiving", params.ReceivingHandler.MountRoutes)
		}
		if params.PickingHandler != nil {
			r.Route("/picking", params.PickingHandler.MountRoutes)
		}
		if params.AnalyticsHandler != nil {
			r.Route("/analytics", params.AnalyticsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readinessHandler(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				out[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		httpx.JSON(w, status, out)
	}
}
