package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NOTIFY_SINK", "redis")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.NotifySink)
	require.Equal(t, 45, cfg.PickSecondsPerItem)
	require.Equal(t, 256, cfg.NotifyBuffer)
	require.Equal(t, ":9091", cfg.WorkerMetricsAddr)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsUnknownSink(t *testing.T) {
	t.Setenv("NOTIFY_SINK", "kafka")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestActorMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var got shared.Actor
	var ok bool
	h := ActorMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "42")
	req.Header.Set(HeaderActorName, "dock-3")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, ok)
	require.Equal(t, shared.Actor{ID: 42, Name: "dock-3"}, got)

	for _, raw := range []string{"", "abc", "-1", "0"} {
		req = httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderActorID, raw)
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.False(t, ok, raw)
	}
}

func TestReadiness(t *testing.T) {
	r := NewRouter(RouterParams{
		Config: &Config{},
		Readiness: map[string]Pinger{
			"postgres": PingFunc(func(context.Context) error { return nil }),
			"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		},
	})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), `"postgres":"ok"`)
	require.Contains(t, rr.Body.String(), "connection refused")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "DEBUG"}))
	require.Equal(t, slog.LevelInfo, parseLevel(nil))
}

func TestInTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(TestModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
