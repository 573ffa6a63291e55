package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/store/memory"
)

func TestEngineOptionsRegistersPlugins(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts, cleanup, err := engineOptions(ctx, cfg, logger, prometheus.NewRegistry())
	require.NoError(t, err)
	defer cleanup()

	engine := bursar.New(memory.New(), opts...)
	assert.NotNil(t, engine.Plugins().Get("audit-hook"))
	assert.NotNil(t, engine.Plugins().Get("observability-metrics"))
}
