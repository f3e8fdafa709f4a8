package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carchat/internal/infra/config"
	"carchat/internal/infra/obs"
)

func TestBuildApplicationInMemory(t *testing.T) {
	cfg := config.Config{
		Env:            "test",
		StoreDriver:    config.StoreMemory,
		CatalogDriver:  config.CatalogMemory,
		SendRatePerSec: 5,
		SendBurst:      10,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := buildApplication(context.Background(), cfg, obs.NewMetrics(), logger)
	require.NoError(t, err)
	defer app.close()

	assert.NotNil(t, app.handlers.Chat)
	assert.NotNil(t, app.handlers.Stream)
	assert.NotNil(t, app.handlers.SendLimiter)
	assert.Empty(t, app.runners, "memory delivery needs no background worker")
	assert.NoError(t, app.ready(context.Background()))
}

func TestRealtimeGroupIsPerHost(t *testing.T) {
	group := realtimeGroup("carchat-realtime")
	assert.Contains(t, group, "carchat-realtime")
}
