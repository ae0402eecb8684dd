package capture

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRecoveryCapturesPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	client, backend := newTestClient(t)

	router := gin.New()
	router.Use(Recovery(NewErrorLogger(zap.New(core), client)))
	router.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	captured := backend.Events()
	require.Len(t, captured, 1)
	assert.Equal(t, "boom", captured[0].Message)
	assert.NotEmpty(t, captured[0].Stacktrace)

	entries := logs.FilterMessage("boom").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/boom", entries[0].ContextMap()["path"])
	assert.Contains(t, entries[0].ContextMap(), "trace")
}

func TestUnaryRecoveryCapturesPanic(t *testing.T) {
	client, backend := newTestClient(t)
	interceptor := UnaryRecovery(NewErrorLogger(zap.NewNop(), client))
	info := &grpc.UnaryServerInfo{FullMethod: "/posts.v1.Posts/Get"}

	resp, err := interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))
	captured := backend.Events()
	require.Len(t, captured, 1)
	assert.Equal(t, "boom", captured[0].Message)

	resp, err = interceptor(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Len(t, backend.Events(), 1)
}

func TestRecoveryCapturesContextErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, backend := newTestClient(t)

	router := gin.New()
	router.Use(Recovery(NewErrorLogger(nil, client)))
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("upstream timeout"))
		c.Status(http.StatusBadGateway)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	captured := backend.Events()
	require.Len(t, captured, 1)
	assert.Equal(t, "exception", captured[0].Kind)
	assert.Equal(t, "upstream timeout", captured[0].Message)
}

func TestErrorLoggerWithoutBackend(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewErrorLogger(zap.New(core), NewClient(nil))

	l.LogException(t.Context(), errors.New("boom"), nil, true)
	l.LogException(t.Context(), nil, nil, false)
	l.LogError(t.Context(), &RuntimeError{Message: "notice", Level: "warning"}, nil, false)
	l.LogError(t.Context(), nil, nil, false)
	l.Log(zapcore.InfoLevel, "plain", zap.String("k", "v"))

	assert.Equal(t, 1, logs.FilterMessage("Exception").Len())
	assert.Equal(t, 1, logs.FilterMessage("notice").Len())
	assert.Equal(t, 1, logs.FilterMessage("plain").Len())
	assert.Equal(t, 3, logs.Len())
}

func TestErrorLoggerLogMessagePanics(t *testing.T) {
	l := NewErrorLogger(nil, nil)
	assert.Panics(t, func() {
		l.LogMessage(zapcore.ErrorLevel, "legacy")
	})
	assert.Nil(t, l.Client())
}
