package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/config"
)

// TestNewLogger verifies the configured level is applied and unknown levels fall back to info.
func TestNewLogger(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, newLogger(config.Log{Level: "debug", Format: "console"}).GetLevel())
	require.Equal(t, zerolog.WarnLevel, newLogger(config.Log{Level: "warn"}).GetLevel())
	require.Equal(t, zerolog.InfoLevel, newLogger(config.Log{Level: "loud"}).GetLevel())
}

// TestEngineLogger verifies the engine logger honours the configured level.
func TestEngineLogger(t *testing.T) {
	ctx := context.Background()
	l := engineLogger(config.Log{Level: "warn", Format: "console"})
	require.False(t, l.Enabled(ctx, slog.LevelInfo))
	require.True(t, l.Enabled(ctx, slog.LevelWarn))

	l = engineLogger(config.Log{Level: "nonsense"})
	require.True(t, l.Enabled(ctx, slog.LevelInfo))
	require.False(t, l.Enabled(ctx, slog.LevelDebug))
}
