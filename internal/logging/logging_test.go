package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{ closed bool }

func (c *failingCloser) Close() error {
	c.closed = true
	return errors.New("close failed")
}

func TestNewStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)
	require.NotNil(t, logger)

	logger.Debug("hidden")
	logger.Info("visible", slog.String("feed", "trip-updates"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"visible"`)
	assert.Contains(t, out, `"feed":"trip-updates"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseLevel(tc.name))
		})
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelDebug)

	LogError(logger, "fetch failed", errors.New("boom"), slog.String("url", "http://example.com"))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"msg":"fetch failed"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"url":"http://example.com"`)

	// nil logger must not panic
	LogError(nil, "ignored", errors.New("x"))
}

func TestLogOperationDropsZeroDuration(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelDebug)

	LogOperation(logger, "poll", slog.Duration("duration", 0), slog.Int("trips", 3))
	assert.NotContains(t, buf.String(), `"duration"`)
	assert.Contains(t, buf.String(), `"trips":3`)

	buf.Reset()
	LogOperation(logger, "poll", slog.Duration("duration", time.Second))
	assert.Contains(t, buf.String(), `"duration"`)
}

func TestSafeCloseWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(&buf, slog.LevelInfo)

	c := &failingCloser{}
	SafeCloseWithLogging(c, logger, "close_store")

	assert.True(t, c.closed)
	assert.Contains(t, buf.String(), `"operation":"close_store"`)
	assert.Contains(t, buf.String(), `"error":"close failed"`)

	SafeCloseWithLogging(nil, logger, "noop")
}
