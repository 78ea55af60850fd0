package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingsen2/micronutrient-radar/internal/config"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
)

func TestSetupWithWriter(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	testCases := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
	}{
		{level: "debug", debugSeen: true, infoSeen: true},
		{level: "info", debugSeen: false, infoSeen: true},
		{level: "ERROR", debugSeen: false, infoSeen: false},
		{level: "bogus", debugSeen: false, infoSeen: true},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: tc.level}, &buf)
			require.NoError(t, err)
			require.NotNil(t, l)

			l.Debug("debug message")
			l.Info("info message", "food_image_id", "abc")

			out := buf.String()
			assert.Equal(t, tc.debugSeen, strings.Contains(out, "debug message"))
			assert.Equal(t, tc.infoSeen, strings.Contains(out, "info message"))
			assert.Same(t, l, slog.Default(), "Setup should install the logger as default")
		})
	}
}

func TestSetupWritesJSON(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	var buf bytes.Buffer
	l, err := logger.SetupWithWriter(config.ServerConfig{LogLevel: "info"}, &buf)
	require.NoError(t, err)

	l.Info("task completed", "task_id", "t-1", "task_type", "process_food_image")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "task completed", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "process_food_image", entry["task_type"])
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	reqLogger := slog.New(slog.NewJSONHandler(&buf, nil)).With("trace_id", "trace-123")
	fallback := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	t.Run("logger in context", func(t *testing.T) {
		ctx := logger.WithLogger(context.Background(), reqLogger)
		assert.Same(t, reqLogger, logger.FromContext(ctx))
		assert.Same(t, reqLogger, logger.FromContextOrDefault(ctx, fallback))
	})

	t.Run("no logger in context", func(t *testing.T) {
		assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
		assert.Same(t, slog.Default(), logger.FromContextOrDefault(context.Background(), nil))
	})

	t.Run("nil context", func(t *testing.T) {
		//nolint:staticcheck // nil context is tolerated
		assert.Same(t, fallback, logger.FromContextOrDefault(nil, fallback))
	})
}
