package ledger

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Handler exposes locations and ledger reads over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type adjustmentRequest struct {
	ProductID  int64  `json:"product_id"`
	LocationID int64  `json:"location_id"`
	Delta      int    `json:"delta"`
	Reason     string `json:"reason"`
}

type primaryRequest struct {
	LocationID int64 `json:"location_id"`
}

func (h *Handler) listLocations(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := httpx.QueryBool(r, "active")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	locations, err := h.service.ListLocations(r.Context(), LocationFilter{
		Zone:       q.Get("zone"),
		Type:       LocationType(q.Get("type")),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		h.fail(w, "list locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, locations)
}

func (h *Handler) createLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var input CreateLocationInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.CreateLocation(r.Context(), input, actor)
	if err != nil {
		h.fail(w, "create location", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loc)
}

func (h *Handler) showLocation(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.GetLocation(r.Context(), id)
	if err != nil {
		h.fail(w, "get location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var changes map[string]any
	if err := httpx.DecodeJSON(r, &changes); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.UpdateLocation(r.Context(), id, changes, actor)
	if err != nil {
		h.fail(w, "update location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) locationInventory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.GetInventoryAtLocation(r.Context(), id)
	if err != nil {
		h.fail(w, "location inventory", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) suggestLocation(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	loc, err := h.service.SuggestReceivingLocation(r.Context(), productID)
	if err != nil {
		h.fail(w, "suggest location", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) productLocations(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.GetLocationsForProduct(r.Context(), productID)
	if err != nil {
		h.fail(w, "product locations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) setPrimary(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	productID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req primaryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetPrimaryLocation(r.Context(), productID, req.LocationID, actor); err != nil {
		h.fail(w, "set primary location", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inStock, err := httpx.QueryBool(r, "in_stock")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	rows, err := h.service.GetInventorySummary(r.Context(), SummaryFilter{
		Zone:         q.Get("zone"),
		LocationType: LocationType(q.Get("type")),
		ProductID:    productID,
		OnlyInStock:  inStock,
	})
	if err != nil {
		h.fail(w, "inventory summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual_adjustment"
	}
	res, err := h.service.ApplyQuantityDelta(r.Context(), DeltaInput{
		ProductID:  req.ProductID,
		LocationID: req.LocationID,
		Delta:      req.Delta,
		Actor:      actor,
		Reason:     reason,
		RefModule:  "ledger",
	})
	if err != nil {
		h.fail(w, "apply adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
