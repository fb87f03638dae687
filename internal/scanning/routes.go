package scanning

import "github.com/go-chi/chi/v5"

// MountRoutes registers scan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/scans", h.processScan)
	r.Post("/scans/counts", h.confirmCount)
	r.Get("/scans", h.history)
}
