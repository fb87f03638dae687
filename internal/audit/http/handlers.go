package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-wms/internal/audit"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// TrailService defines the business contract for audit trail data.
type TrailService interface {
	Trail(ctx context.Context, filter audit.Filter) ([]shared.AuditLog, error)
}

// Handler serves audit trail requests.
type Handler struct {
	logger  *slog.Logger
	service TrailService
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service TrailService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	logs, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	logs, ok := h.load(w, r)
	if !ok {
		return
	}
	csvBytes, err := audit.WriteCSV(logs)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-trail.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) ([]shared.AuditLog, bool) {
	limit, err := httpx.QueryInt(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return nil, false
	}
	q := r.URL.Query()
	logs, err := h.service.Trail(r.Context(), audit.Filter{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Action:       strings.TrimSpace(q.Get("action")),
		Limit:        limit,
	})
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("load audit trail", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return nil, false
	}
	return logs, true
}
