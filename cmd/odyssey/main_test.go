package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/internal/app"
	"github.com/odyssey-erp/odyssey-wms/internal/notify"
	_ "github.com/odyssey-erp/odyssey-wms/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}

func TestEventPublisherFallsBackToNop(t *testing.T) {
	cfg := &app.Config{NotifySink: "queue"}
	require.IsType(t, notify.NopPublisher{}, eventPublisher(cfg, nil, nil))

	cfg.NotifySink = "none"
	require.IsType(t, notify.NopPublisher{}, eventPublisher(cfg, nil, nil))
}
