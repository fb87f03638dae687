package audithttp

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Per-caller CSV export allowance.
const (
	exportLimit  = 10
	exportWindow = time.Minute
)

// MountRoutes registers the audit trail and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/", h.handleTrail)
	r.With(httpx.ActorLimiter(exportLimit, exportWindow, "export rate limit exceeded")).
		Get("/export.csv", h.handleExport)
}
