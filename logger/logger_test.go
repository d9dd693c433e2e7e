package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCorrelationFromContext(t *testing.T) {
	assert.Equal(t, "unknown", Correlation(context.Background()))

	ctx := WithCorrelation(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", Correlation(ctx))
}

func TestCorrelationFromGinContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/", nil)

	assert.Equal(t, "unknown", Correlation(c))

	c.Request = c.Request.WithContext(WithCorrelation(c.Request.Context(), "from-request"))
	assert.Equal(t, "from-request", Correlation(c))

	c.Set(CorrelationKey, "from-gin")
	assert.Equal(t, "from-gin", Correlation(c))
}

func TestHelpersAttachCorrelationToken(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Log
	Log = zap.New(core)
	t.Cleanup(func() { Log = prev })

	ctx := WithCorrelation(context.Background(), "abc")
	Info(ctx, "hello")
	Error(ctx, "failed", assert.AnError)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[0].ContextMap()[CorrelationKey])
	assert.Equal(t, assert.AnError.Error(), entries[1].ContextMap()["error"])
}

func TestNewTeesToSink(t *testing.T) {
	var sink bytes.Buffer
	l, err := New("production", &sink)
	require.NoError(t, err)

	l.Info("shipped", zap.String("k", "v"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(sink.Bytes()), &line))
	assert.Equal(t, "shipped", line["msg"])
	assert.Equal(t, "v", line["k"])
	assert.Contains(t, line, "timestamp")
}
