package scanning

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

// Handler is the device-facing scan intake.
type Handler struct {
	logger *slog.Logger
	engine *Engine
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, engine: engine}
}

// processScan accepts a scan. The Idempotency-Key header fills the request
// key when the body carries none.
func (h *Handler) processScan(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var event ScanEvent
	if err := httpx.DecodeJSON(r, &event); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if event.IdempotencyKey == "" {
		event.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	result, err := h.engine.ProcessScan(r.Context(), event, actor)
	if err != nil {
		h.fail(w, "process scan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) confirmCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpx.RequireActor(w, r)
	if !ok {
		return
	}
	var input CountInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.engine.ConfirmCount(r.Context(), input, actor)
	if err != nil {
		h.fail(w, "confirm count", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actorID, err := httpx.QueryInt64(r, "actor_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.QueryTime(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryTime(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	scans, err := h.engine.History(r.Context(), HistoryFilter{
		SessionID: q.Get("session_id"),
		ActorID:   actorID,
		ScanType:  ScanType(q.Get("scan_type")),
		Status:    Status(q.Get("status")),
		From:      from,
		To:        to,
		Limit:     limit,
	})
	if err != nil {
		h.fail(w, "scan history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, scans)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
