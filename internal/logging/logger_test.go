package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevel(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
	}
	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			logger := New(Config{Level: tc.level})
			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tc.enabled))
			assert.False(t, logger.Enabled(ctx, tc.muted))
		})
	}
}

type countingHandler struct {
	enabled bool
	count   int
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return h.enabled }
func (h *countingHandler) Handle(context.Context, slog.Record) error {
	h.count++
	return nil
}
func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func TestFanoutHandlerSkipsDisabled(t *testing.T) {
	on := &countingHandler{enabled: true}
	off := &countingHandler{enabled: false}
	logger := slog.New(newFanoutHandler(on, off))

	logger.Info("hello")

	require.Equal(t, 1, on.count)
	assert.Equal(t, 0, off.count)
}

func TestFanoutHandlerEnabledWhenAnyIs(t *testing.T) {
	on := &countingHandler{enabled: true}
	off := &countingHandler{enabled: false}
	h := newFanoutHandler(off, on)

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, newFanoutHandler(off).Enabled(context.Background(), slog.LevelInfo))
}
