package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONAtLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Info("dropped")
	logger.Warn("kept", "book_id", "b1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "b1", record["book_id"])
}

func TestContextWithLogger(t *testing.T) {
	t.Parallel()

	logger := New(&bytes.Buffer{}, slog.LevelInfo)
	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	assert.Nil(t, FromContext(context.Background()))
	assert.Equal(t, context.Background(), ContextWithLogger(context.Background(), nil))
}

func TestScoped_PrefersRequestLogger(t *testing.T) {
	t.Parallel()

	var requestBuf, fallbackBuf bytes.Buffer
	request := New(&requestBuf, slog.LevelInfo)
	fallback := New(&fallbackBuf, slog.LevelInfo)

	Scoped(ContextWithLogger(context.Background(), request), fallback, "service", "BorrowingService").Info("borrowed")
	assert.Zero(t, fallbackBuf.Len())

	var record map[string]any
	require.NoError(t, json.Unmarshal(requestBuf.Bytes(), &record))
	assert.Equal(t, "BorrowingService", record["service"])

	Scoped(context.Background(), fallback).Info("returned")
	assert.Contains(t, fallbackBuf.String(), `"msg":"returned"`)

	assert.Same(t, slog.Default(), Scoped(context.Background(), nil))
}
