package picking

import "github.com/go-chi/chi/v5"

// MountRoutes registers picking routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lists", h.listPickLists)
	r.Post("/lists", h.createPickList)
	r.Get("/lists/{id}", h.showPickList)
	r.Get("/lists/{id}/route", h.route)
	r.Post("/lists/{id}/optimize", h.optimize)
	r.Post("/lists/{id}/scans", h.scan)
	r.Post("/lists/{id}/complete", h.complete)
}
