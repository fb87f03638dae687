package receiving

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Handler manages inbound shipment endpoints.
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

func (h *Handler) createShipment(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var input CreateShipmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shipment, err := h.service.CreateShipment(r.Context(), input, actor)
	if err != nil {
		h.fail(w, "create shipment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shipment)
}

func (h *Handler) listShipments(w http.ResponseWriter, r *http.Request) {
	var (
		filter ListFilter
		err    error
	)
	filter.Status = ShipmentStatus(r.URL.Query().Get("status"))
	if filter.Status != "" && !filter.Status.IsValid() {
		httpx.RespondError(w, httpx.ErrBadRequest)
		return
	}
	if filter.SupplierID, err = httpx.QueryInt64(r, "supplier_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.From, err = httpx.QueryTime(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryTime(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Limit, err = httpx.QueryInt(r, "limit"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Offset, err = httpx.QueryInt(r, "offset"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	shipments, err := h.service.ListShipments(r.Context(), filter)
	if err != nil {
		h.fail(w, "list shipments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipments)
}

func (h *Handler) showShipment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shipment, err := h.service.GetShipment(r.Context(), id)
	if err != nil {
		h.fail(w, "get shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input ScanInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	outcome, err := h.service.ProcessScan(r.Context(), id, input, actor)
	if err != nil {
		h.fail(w, "receiving scan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

func (h *Handler) reportDiscrepancy(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input DiscrepancyInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.ReportDiscrepancy(r.Context(), id, itemID, input, actor)
	if err != nil {
		h.fail(w, "report discrepancy", err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shipment, err := h.service.CompleteShipment(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "complete shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
