package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/LordSimal/gin-sentry/internal/backend/memory"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/config"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/logging"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
	"github.com/LordSimal/gin-sentry/internal/plugin"
)

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(&logging.Logger{Logger: zap.NewNop()})}, opts...)
	s, err := NewServer(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestRootAndHealthWithoutDatabase(t *testing.T) {
	s := newTestServer(t, config.Default())

	w := do(s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	var root map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &root))
	assert.Equal(t, plugin.ServiceName, root["service"])
	assert.Equal(t, false, root["tracing"])

	w = do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestPostsWithoutDatabase(t *testing.T) {
	s := newTestServer(t, config.Default())

	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodGet, "/posts", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/posts/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/posts", `{"body":"no title"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodPost, "/posts", `{"title":"hello"}`).Code)
}

func TestHealthReportsUnavailableDatabase(t *testing.T) {
	cfg := config.Default()
	// Pool creation is lazy, so the connection only fails once pinged.
	cfg.Database.URL = "postgres://nobody@127.0.0.1:1/none?connect_timeout=1"
	s := newTestServer(t, cfg)

	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestMetricsEndpoints(t *testing.T) {
	s := newTestServer(t, config.Default())

	do(s, http.MethodGet, "/", "")

	w := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sentry_http_requests_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")

	w = do(s, http.MethodGet, "/metrics/json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "total_requests")
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/metrics", "").Code)
}

func TestTracedRequests(t *testing.T) {
	backend := memory.New(nil)
	cfg := config.Default()
	cfg.Sentry.DSN = "https://key@o0.ingest.sentry.io/1"

	s := newTestServer(t, cfg,
		WithPluginOptions(plugin.WithBackend(backend)),
		WithSettings(map[string]any{"enablePerformanceMonitoring": true}),
	)
	s.router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("exploded"))
		c.Status(http.StatusInternalServerError)
	})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(s, http.MethodGet, "/boom", "").Code)

	txs := backend.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, tracing.OpHTTPServer, txs[0].Op)
	assert.Equal(t, 200, txs[0].HTTPStatus)

	events := backend.Events()
	require.Len(t, events, 1)
	assert.EqualError(t, events[0].Err, "exploded")
	assert.Equal(t, int64(1), s.metrics.Snapshot().TotalCaptures)
}

func TestInvalidSettings(t *testing.T) {
	_, err := NewServer(context.Background(), config.Default(),
		WithLogger(&logging.Logger{Logger: zap.NewNop()}),
		WithSettings(map[string]any{"unknown": 1}))
	assert.ErrorIs(t, err, config.ErrUnknownSetting)
}

func TestHealthChecksUpstreams(t *testing.T) {
	var (
		mu     sync.Mutex
		traced []string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		traced = append(traced, r.Header.Get(tracing.SentryTraceHeader))
		mu.Unlock()
		if r.URL.Path == "/down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	backend := memory.New(nil)
	cfg := config.Default()
	cfg.Sentry.DSN = "https://key@o0.ingest.sentry.io/1"
	cfg.Upstream.URLs = []string{upstream.URL + "/up", upstream.URL + "/down"}
	s := newTestServer(t, cfg,
		WithPluginOptions(plugin.WithBackend(backend)),
		WithSettings(map[string]any{"enablePerformanceMonitoring": true}),
	)

	w := do(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status    string            `json:"status"`
		Upstreams map[string]string `json:"upstreams"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Upstreams[upstream.URL+"/up"])
	assert.Equal(t, "status 503", body.Upstreams[upstream.URL+"/down"])

	spans := backend.SpansByOp(tracing.OpHTTPClient)
	require.Len(t, spans, 2)
	assert.Equal(t, "GET "+upstream.URL+"/up", spans[0].Description)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, traced, 2)
	for _, header := range traced {
		assert.NotEmpty(t, header)
	}
}

func TestHealthRetriesUpstreams(t *testing.T) {
	var attempts atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	backend := memory.New(nil)
	cfg := config.Default()
	cfg.Sentry.DSN = "https://key@o0.ingest.sentry.io/1"
	cfg.Upstream.URLs = []string{upstream.URL}
	cfg.Upstream.Retries = 2
	s := newTestServer(t, cfg,
		WithPluginOptions(plugin.WithBackend(backend)),
		WithSettings(map[string]any{"enablePerformanceMonitoring": true}),
	)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Len(t, backend.SpansByOp(tracing.OpHTTPClient), 2, "one span per attempt")
}

func TestGRPCHealthIsTraced(t *testing.T) {
	backend := memory.New(nil)
	cfg := config.Default()
	cfg.Server.GRPCPort = "0"
	cfg.Sentry.DSN = "https://key@o0.ingest.sentry.io/1"
	s := newTestServer(t, cfg,
		WithPluginOptions(plugin.WithBackend(backend)),
		WithSettings(map[string]any{"enablePerformanceMonitoring": true}),
	)
	require.NotNil(t, s.GRPC())

	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.GRPC().Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: plugin.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	txs := backend.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, tracing.OpGRPCServer, txs[0].Op)
	assert.Equal(t, "/grpc.health.v1.Health/Check", txs[0].Name)
}

func TestGRPCDisabledByDefault(t *testing.T) {
	s := newTestServer(t, config.Default())
	assert.Nil(t, s.GRPC())
}
