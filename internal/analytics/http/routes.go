package analytichttp

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// MountRoutes registers analytics endpoints onto the router. The dashboard
// runs every metric at once and gets its own per-caller limit.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/throughput", h.handleThroughput)
	r.Get("/accuracy", h.handleAccuracy)
	r.Get("/utilization", h.handleUtilization)
	r.Get("/velocity", h.handleVelocity)
	r.Get("/aging", h.handleAging)
	r.With(httpx.ActorLimiter(h.limit, time.Minute, "dashboard rate limit exceeded")).
		Get("/dashboard", h.handleDashboard)
}
