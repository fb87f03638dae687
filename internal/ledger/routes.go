package ledger

import "github.com/go-chi/chi/v5"

// MountRoutes registers location and inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/locations", h.listLocations)
	r.Post("/locations", h.createLocation)
	r.Get("/locations/{id}", h.showLocation)
	r.Patch("/locations/{id}", h.updateLocation)
	r.Get("/locations/{id}/inventory", h.locationInventory)

	r.Get("/products/{id}/locations", h.productLocations)
	r.Get("/products/{id}/receiving-location", h.suggestLocation)
	r.Put("/products/{id}/primary-location", h.setPrimary)

	r.Get("/inventory/summary", h.summary)
	r.Post("/inventory/adjustments", h.adjust)
}
