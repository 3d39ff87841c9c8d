package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithTraceID(context.Background(), "trace-123")
	logger.WithContext(ctx).WithSource("sheet-1").Info().
		Str("intent", "search_request").
		Int("matches", 2).
		Msg("query handled")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "sheet-assistant", entry["service"])
	assert.Equal(t, "trace-123", entry["trace_id"])
	assert.Equal(t, "sheet-1", entry["source_id"])
	assert.Equal(t, "search_request", entry["intent"])
	assert.Equal(t, float64(2), entry["matches"])
	assert.Equal(t, "query handled", entry["message"])
}

func TestLogger_WithContextWithoutTrace(t *testing.T) {
	logger := NopLogger()
	assert.Same(t, logger, logger.WithContext(context.Background()))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := DefaultLogger()
	assert.Same(t, l, OrNop(l))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "debug",
		"warning": "warn",
		"error":   "error",
		"bogus":   "info",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in).String(), in)
	}
}

func TestLogger_LevelIsPerLogger(t *testing.T) {
	var quiet, loud bytes.Buffer
	q := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &quiet})
	l := NewLogger(LogConfig{Level: "debug", Format: "json", Output: &loud})

	q.Info().Msg("hidden")
	l.Debug().Msg("shown")
	q.WithOperation("refresh").Warn().Msg("kept")

	assert.NotContains(t, quiet.String(), "hidden")
	assert.Contains(t, quiet.String(), `"operation":"refresh"`)
	assert.Contains(t, loud.String(), "shown")
}
