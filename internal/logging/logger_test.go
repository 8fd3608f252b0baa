package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestContextHandler_AddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelDebug, "json")

	ctx := WithLogFields(context.Background(), LogFields{Provider: "notion", UserID: "u1"})
	ctx = WithLogFields(ctx, LogFields{OrgID: "acme", SessionID: "s-1"})
	log.InfoContext(ctx, "authorize requested")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "notion", rec["provider"])
	assert.Equal(t, "u1", rec["user_id"])
	assert.Equal(t, "acme", rec["org_id"])
	assert.Equal(t, "s-1", rec["session_id"])
	assert.NotContains(t, rec, "trace_id")
}

func TestContextHandler_AddsTraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "json").InfoContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
}

func TestMergeFields_LaterNonEmptyWins(t *testing.T) {
	got := mergeFields(LogFields{Provider: "notion", UserID: "u1"}, LogFields{Provider: "hubspot"})
	assert.Equal(t, LogFields{Provider: "hubspot", UserID: "u1"}, got)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}
