package analytichttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-wms/internal/analytics"
	"github.com/odyssey-erp/odyssey-wms/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// AnalyticsService defines the metric contract used by the handler.
type AnalyticsService interface {
	Throughput(ctx context.Context, filter analytics.Filter) (analytics.Throughput, error)
	Accuracy(ctx context.Context, filter analytics.Filter) (analytics.Accuracy, error)
	Utilization(ctx context.Context, filter analytics.Filter) (analytics.Utilization, error)
	Velocity(ctx context.Context, filter analytics.Filter) ([]analytics.VelocityEntry, error)
	Aging(ctx context.Context, filter analytics.Filter) ([]analytics.AgingBucket, error)
	Dashboard(ctx context.Context, filter analytics.Filter) (analytics.Dashboard, error)
}

// Handler serves warehouse KPIs as JSON.
type Handler struct {
	logger  *slog.Logger
	service AnalyticsService
	limit   int
}

// NewHandler constructs the analytics HTTP handler. limit is the per-client
// request budget per minute for the dashboard; 0 disables limiting.
func NewHandler(logger *slog.Logger, service AnalyticsService, limit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, limit: limit}
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "dashboard", h.service.Dashboard)
}

func (h *Handler) handleThroughput(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "throughput", h.service.Throughput)
}

func (h *Handler) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "accuracy", h.service.Accuracy)
}

func (h *Handler) handleUtilization(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "utilization", h.service.Utilization)
}

func (h *Handler) handleVelocity(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "velocity", h.service.Velocity)
}

func (h *Handler) handleAging(w http.ResponseWriter, r *http.Request) {
	serve(h, w, r, "aging", h.service.Aging)
}

func serve[T any](h *Handler, w http.ResponseWriter, r *http.Request, metric string, load func(context.Context, analytics.Filter) (T, error)) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	out, err := load(ctx, filter)
	if err != nil {
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("analytics query", slog.String("metric", metric), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

// parseFilter reads from/to/zone. Dates are YYYY-MM-DD or RFC3339; a bare
// date for to includes that whole day.
func parseFilter(r *http.Request) (analytics.Filter, error) {
	q := r.URL.Query()
	var (
		f   analytics.Filter
		err error
	)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		if f.From, _, err = parseTime(raw); err != nil {
			return analytics.Filter{}, fmt.Errorf("%w: invalid from", httpx.ErrBadRequest)
		}
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		var dateOnly bool
		if f.To, dateOnly, err = parseTime(raw); err != nil {
			return analytics.Filter{}, fmt.Errorf("%w: invalid to", httpx.ErrBadRequest)
		}
		if dateOnly {
			f.To = f.To.Add(24 * time.Hour)
		}
	}
	f.Zone = strings.TrimSpace(q.Get("zone"))
	return f, nil
}

func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}
