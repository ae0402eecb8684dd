package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/LordSimal/gin-sentry/internal/database"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/config"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/logging"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/monitoring"
	"github.com/LordSimal/gin-sentry/internal/middleware"
	"github.com/LordSimal/gin-sentry/internal/plugin"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	http       *http.Server
	grpc       *grpc.Server
	grpcHealth *health.Server
	upstreams  *upstreamChecker
	plugin     *plugin.Plugin
	registry   *database.Registry
	metrics    *monitoring.Metrics
	logger     *logging.Logger
	config     *config.Config
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logger        *logging.Logger
	pluginOptions []plugin.Option
	settings      map[string]any
}

// WithLogger replaces the logger built from the config.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPluginOptions passes extra options to the plugin.
func WithPluginOptions(opts ...plugin.Option) Option {
	return func(o *options) { o.pluginOptions = append(o.pluginOptions, opts...) }
}

// WithSettings merges a flat settings map into the Sentry config on Init.
func WithSettings(settings map[string]any) Option {
	return func(o *options) { o.settings = settings }
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.FromConfig(cfg.Logging)
	}

	logger.Info("Initializing gin-sentry server",
		zap.String("port", cfg.Server.Port),
		zap.Bool("sentry", cfg.Sentry.Enabled()),
		zap.String("backend", cfg.Sentry.Backend),
	)

	// Metrics live on their own registry so tests can build many servers.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(promRegistry)
	logger.Info("Performance monitoring initialized")

	registry := database.NewRegistry(logger.Logger)
	for _, connCfg := range cfg.Database.ConnectionConfigs() {
		conn, err := registry.Register(connCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to register connection: %w", err)
		}
		conn.SetLogger(logger.QueryLogger())
		if _, err := registry.Open(ctx, conn.Name()); err != nil {
			logger.Warn("Failed to open database connection",
				zap.String("connection", conn.Name()),
				zap.Error(err))
		}
	}

	p := plugin.New(cfg.Sentry, append([]plugin.Option{
		plugin.WithLogger(logger.Logger),
		plugin.WithRegistry(registry),
		plugin.WithMetrics(metrics),
	}, o.pluginOptions...)...)
	if err := p.Init(ctx, o.settings); err != nil {
		registry.Close()
		return nil, fmt.Errorf("failed to initialize plugin: %w", err)
	}

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	p.Install(router)
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfigFrom(cfg.RateLimit)))
	}

	s := &Server{
		upstreams: newUpstreamChecker(cfg.Upstream, logger.Logger),
		router:    router,
		plugin:    p,
		registry:  registry,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
	}

	posts := newPostsHandler(registry, logger.Logger)
	if err := posts.migrate(ctx); err != nil {
		logger.Warn("Failed to create posts table", zap.Error(err))
	}

	// Register routes
	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/posts", posts.list)
	router.GET("/posts/:id", posts.get)
	router.POST("/posts", posts.create)

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))
		router.GET(cfg.Metrics.Path+"/json", func(c *gin.Context) {
			c.JSON(http.StatusOK, metrics.Snapshot())
		})
	}

	s.http = &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	if cfg.Server.GRPCPort != "" {
		s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(p.UnaryInterceptors()...))
		s.grpcHealth = health.NewServer()
		s.grpcHealth.SetServingStatus(plugin.ServiceName, healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(s.grpc, s.grpcHealth)
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Plugin returns the installed plugin.
func (s *Server) Plugin() *plugin.Plugin {
	return s.plugin
}

// GRPC returns the gRPC server, or nil when no gRPC port is configured.
func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

// Run starts the HTTP server, and the gRPC server when configured, and blocks
// until one of them stops.
func (s *Server) Run() error {
	errCh := make(chan error, 2)
	if s.grpc != nil {
		go func() { errCh <- s.serveGRPC() }()
	}
	go func() { errCh <- s.serveHTTP() }()
	return <-errCh
}

func (s *Server) serveHTTP() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) serveGRPC() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.GRPCPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	s.logger.Info("Starting gRPC server", zap.String("addr", addr))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, flushes the tracing backend and closes
// database pools.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.grpc != nil {
		s.grpcHealth.Shutdown()
		s.grpc.GracefulStop()
	}
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
	}
	if err := s.plugin.Close(ctx); err != nil {
		s.logger.Error("Failed to close plugin", zap.Error(err))
		errs = append(errs, err)
	}
	s.registry.Close()

	// Sync logger before exit
	_ = s.logger.Sync()

	return errors.Join(errs...)
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     plugin.ServiceName,
		"environment": s.plugin.Config().Environment,
		"tracing":     s.plugin.Client().Enabled(),
	})
}

func (s *Server) health(c *gin.Context) {
	databases := gin.H{}
	healthy := true
	for _, name := range s.registry.Configured() {
		conn, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		pool := conn.Pool()
		switch {
		case pool == nil:
			databases[name] = "unavailable"
			healthy = false
		case pool.Ping(c.Request.Context()) != nil:
			databases[name] = "unreachable"
			healthy = false
		default:
			databases[name] = "ok"
		}
	}

	body := gin.H{"databases": databases}
	if len(s.upstreams.urls) > 0 {
		upstreams, ok := s.upstreams.check(c.Request.Context())
		body["upstreams"] = upstreams
		healthy = healthy && ok
	}

	status := http.StatusOK
	body["status"] = "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
