package picking

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Handler manages pick list endpoints.
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

func (h *Handler) createPickList(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var input CreatePickListInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.CreatePickList(r.Context(), input, actor)
	if err != nil {
		h.fail(w, "create pick list", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, list)
}

func (h *Handler) listPickLists(w http.ResponseWriter, r *http.Request) {
	var (
		filter ListFilter
		err    error
	)
	q := r.URL.Query()
	filter.Status = ListStatus(q.Get("status"))
	filter.Zone = q.Get("zone")
	if filter.AssigneeID, err = httpx.QueryInt64(r, "assignee_id"); err != nil {
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
	lists, err := h.service.ListPickLists(r.Context(), filter)
	if err != nil {
		h.fail(w, "list pick lists", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lists)
}

func (h *Handler) showPickList(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.GetPickList(r.Context(), id)
	if err != nil {
		h.fail(w, "get pick list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) optimize(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.OptimizeRoute(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "optimize route", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	route, err := h.service.GetSuggestedRoute(r.Context(), id)
	if err != nil {
		h.fail(w, "suggested route", err)
		return
	}
	httpx.JSON(w, http.StatusOK, route)
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
		h.fail(w, "picking scan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
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
	list, err := h.service.CompletePickList(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "complete pick list", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
