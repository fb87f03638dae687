package receiving

import "github.com/go-chi/chi/v5"

// MountRoutes registers receiving routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/shipments", h.listShipments)
	r.Post("/shipments", h.createShipment)
	r.Get("/shipments/{id}", h.showShipment)
	r.Post("/shipments/{id}/scans", h.scan)
	r.Post("/shipments/{id}/items/{itemID}/discrepancies", h.reportDiscrepancy)
	r.Post("/shipments/{id}/complete", h.complete)
}
