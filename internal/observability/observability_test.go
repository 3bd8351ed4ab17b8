package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggerConfig{
		Level:   "debug",
		Output:  &buf,
		Service: "coursepipe",
		Version: "1.0.0",
	})
	require.NoError(t, err)

	logger.Info("task finished", zap.String("task", "staging"), zap.Int("attempt", 2))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "task finished", entry["msg"])
	assert.Equal(t, "coursepipe", entry["service"])
	assert.Equal(t, "1.0.0", entry["version"])
	assert.Equal(t, "staging", entry["task"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggerConfig{Level: "warn", Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, "shown")
}

func TestLoggerConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LoggerConfig{Format: "console", Output: &buf})
	require.NoError(t, err)

	logger.Info("loading extracts")
	assert.True(t, strings.Contains(buf.String(), "loading extracts"))
}

func TestLoggerRejectsUnknownSettings(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LoggerConfig{Format: "xml"})
	assert.Error(t, err)
}

func TestContextLogger(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	logger := zap.NewExample()
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, OrNop(nil))
}
