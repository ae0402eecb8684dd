package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/LordSimal/gin-sentry/internal/backend/memory"
	"github.com/LordSimal/gin-sentry/internal/backend/otelbackend"
	"github.com/LordSimal/gin-sentry/internal/backend/sentrybackend"
	"github.com/LordSimal/gin-sentry/internal/capture"
	"github.com/LordSimal/gin-sentry/internal/database"
	"github.com/LordSimal/gin-sentry/internal/events"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/config"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/monitoring"
	"github.com/LordSimal/gin-sentry/internal/infrastructure/tracing"
)

// ServiceName names the service on OpenTelemetry resources.
const ServiceName = "gin-sentry"

var ErrUnknownBackend = errors.New("plugin: unknown tracing backend")

// Plugin owns the tracing backend and the capture client of one application.
type Plugin struct {
	cfg      config.SentryConfig
	logger   *zap.Logger
	registry *database.Registry
	metrics  *monitoring.Metrics
	events   *events.Manager
	clock    clockz.Clock

	backend tracing.Backend
	// shutdown releases backend resources after the final flush.
	shutdown func(context.Context) error
	client   *capture.Client
	errors   *capture.ErrorLogger
}

// Option configures a Plugin.
type Option func(*Plugin)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Plugin) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegistry enables request query logs over the registry's connections.
func WithRegistry(r *database.Registry) Option {
	return func(p *Plugin) { p.registry = r }
}

// WithMetrics reports query logs and captures to m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Plugin) { p.metrics = m }
}

func WithEvents(m *events.Manager) Option {
	return func(p *Plugin) {
		if m != nil {
			p.events = m
		}
	}
}

func WithClock(clock clockz.Clock) Option {
	return func(p *Plugin) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithBackend uses b instead of building one from the config. It is still
// only used when a DSN is configured.
func WithBackend(b tracing.Backend) Option {
	return func(p *Plugin) { p.backend = b }
}

// New creates an uninitialised plugin.
func New(cfg config.SentryConfig, opts ...Option) *Plugin {
	p := &Plugin{
		cfg:    cfg,
		logger: zap.NewNop(),
		clock:  clockz.RealClock,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.events == nil {
		p.events = events.NewManager(p.logger)
	}
	return p
}

// Init merges settings over the config, builds the backend when a DSN is set
// and dispatches the afterSetup event.
func (p *Plugin) Init(ctx context.Context, settings map[string]any) error {
	if err := p.cfg.Merge(settings); err != nil {
		return fmt.Errorf("failed to merge sentry settings: %w", err)
	}

	if !p.cfg.Enabled() {
		p.backend = nil
		p.logger.Info("Sentry DSN not configured, error tracking disabled")
	} else if p.backend == nil {
		if err := p.buildBackend(ctx); err != nil {
			return err
		}
	}

	opts := []capture.Option{
		capture.WithEvents(p.events),
		capture.WithIncludeSchemaReflection(p.cfg.IncludeSchemaReflection),
		capture.WithLogger(p.logger),
	}
	if p.metrics != nil {
		opts = append(opts, capture.WithObserver(p.metrics))
	}
	p.client = capture.NewClient(p.backend, opts...)
	p.errors = capture.NewErrorLogger(p.logger, p.client)

	if p.client.Enabled() {
		p.logger.Info("Error tracking initialized",
			zap.String("backend", p.cfg.Backend),
			zap.String("environment", p.cfg.Environment),
			zap.Bool("query_logging", p.cfg.EnableQueryLogging),
			zap.Bool("performance_monitoring", p.cfg.EnablePerformanceMonitoring))
		p.events.Dispatch(ctx, events.ClientAfterSetup, p.client, nil)
	}
	return nil
}

func (p *Plugin) buildBackend(ctx context.Context) error {
	switch p.cfg.Backend {
	case config.BackendSentry, "":
		b, err := sentrybackend.New(sentrybackend.Options{
			DSN:              p.cfg.DSN,
			Environment:      p.cfg.Environment,
			Release:          p.cfg.Release,
			Debug:            p.cfg.Debug,
			TracesSampleRate: p.cfg.TracesSampleRate,
			Prefixes:         p.cfg.Prefixes,
			InAppExclude:     p.cfg.InAppExclude,
		}, p.logger)
		if err != nil {
			return fmt.Errorf("failed to create sentry backend: %w", err)
		}
		p.backend = b
	case config.BackendOTel:
		b, err := otelbackend.New(ctx, otelbackend.Options{
			ServiceName:    ServiceName,
			ServiceVersion: p.cfg.Release,
			Environment:    p.cfg.Environment,
			Endpoint:       p.cfg.OTLPEndpoint,
			Insecure:       p.cfg.OTLPInsecure,
			SampleRate:     p.cfg.TracesSampleRate,
		}, p.logger)
		if err != nil {
			return fmt.Errorf("failed to create otel backend: %w", err)
		}
		p.backend = b
		p.shutdown = b.Shutdown
	case config.BackendLog:
		b := memory.New(p.logger, memory.WithClock(p.clock))
		p.backend = b
		p.shutdown = func(context.Context) error {
			b.Close()
			return nil
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, p.cfg.Backend)
	}
	return nil
}

// Middleware returns the request middleware in order: recovery, query logs
// and the request transaction.
func (p *Plugin) Middleware() []gin.HandlerFunc {
	handlers := []gin.HandlerFunc{capture.Recovery(p.ErrorLogger())}

	if sessionCfg, ok := p.sessionConfig(); ok {
		handlers = append(handlers, database.QueryMiddleware(p.registry, sessionCfg))
	}
	if p.cfg.EnablePerformanceMonitoring && p.backend != nil {
		handlers = append(handlers, tracing.HTTPMiddleware(p.backend, p.tracingOptions()...))
	}
	return handlers
}

// UnaryInterceptors returns the gRPC counterpart of Middleware, in the same
// order.
func (p *Plugin) UnaryInterceptors() []grpc.UnaryServerInterceptor {
	interceptors := []grpc.UnaryServerInterceptor{capture.UnaryRecovery(p.ErrorLogger())}

	if sessionCfg, ok := p.sessionConfig(); ok {
		interceptors = append(interceptors, database.UnaryQueryInterceptor(p.registry, sessionCfg))
	}
	if p.cfg.EnablePerformanceMonitoring && p.backend != nil {
		interceptors = append(interceptors, tracing.GRPCUnaryInterceptor(p.backend, p.tracingOptions()...))
	}
	return interceptors
}

func (p *Plugin) sessionConfig() (database.SessionConfig, bool) {
	if !p.cfg.EnableQueryLogging || p.registry == nil {
		return database.SessionConfig{}, false
	}
	cfg := database.SessionConfig{
		IncludeSchemaReflection: p.cfg.IncludeSchemaReflection,
		Auxiliary:               p.cfg.AuxiliaryConnections,
		Clock:                   p.clock,
	}
	if p.metrics != nil {
		cfg.Observer = p.metrics
	}
	return cfg, true
}

func (p *Plugin) tracingOptions() []tracing.Option {
	opts := []tracing.Option{
		tracing.WithClock(p.clock),
		tracing.WithLogger(p.logger),
		tracing.WithStartHook(database.MonitoringHook()),
	}
	if p.cfg.TrustRequestStart {
		opts = append(opts, tracing.WithTrustedRequestStart())
	}
	return opts
}

// Install adds the middleware to router.
func (p *Plugin) Install(router gin.IRoutes) {
	router.Use(p.Middleware()...)
}

// Config returns the merged configuration.
func (p *Plugin) Config() config.SentryConfig {
	return p.cfg
}

// Backend returns the tracing backend, or nil when inert.
func (p *Plugin) Backend() tracing.Backend {
	return p.backend
}

func (p *Plugin) Events() *events.Manager {
	return p.events
}

// Client returns the capture client. It is inert before Init.
func (p *Plugin) Client() *capture.Client {
	if p.client == nil {
		return capture.NewClient(nil, capture.WithEvents(p.events), capture.WithLogger(p.logger))
	}
	return p.client
}

func (p *Plugin) ErrorLogger() *capture.ErrorLogger {
	if p.errors == nil {
		return capture.NewErrorLogger(p.logger, p.Client())
	}
	return p.errors
}

// Close flushes pending events and releases the backend.
func (p *Plugin) Close(ctx context.Context) error {
	if p.backend == nil {
		return nil
	}
	if !p.backend.Flush(p.cfg.FlushTimeout) {
		p.logger.Warn("Tracing backend flush timed out", zap.Duration("timeout", p.cfg.FlushTimeout))
	}
	if p.shutdown != nil {
		if err := p.shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down tracing backend: %w", err)
		}
	}
	return nil
}
