package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
)

var (
	ErrUnknownConnection   = errors.New("database: unknown connection")
	ErrDuplicateConnection = errors.New("database: connection already registered")
)

// Config is the driver-level configuration of a connection.
type Config struct {
	Name   string `yaml:"name" toml:"name"`
	URL    string `yaml:"url" toml:"url"`
	Role   Role   `yaml:"role" toml:"role"`
	System string `yaml:"system" toml:"system"`
	// Log enables driver query logging.
	Log bool `yaml:"log" toml:"log"`
	// SentryLog keeps the existing logger behind the request query log.
	SentryLog bool `yaml:"sentry_log" toml:"sentry_log"`
}

// Connection is a named database connection. It implements tracelog.Logger
// and routes each log call to the request-scoped QueryLog in ctx.
type Connection struct {
	cfg Config

	mu           sync.RWMutex
	logger       tracelog.Logger
	queryLogging bool
	pool         *pgxpool.Pool

	// openMu serializes Registry.Open so a connection gets one pool.
	openMu sync.Mutex
}

func (c *Connection) Name() string {
	return c.cfg.Name
}

// Config returns the driver configuration.
func (c *Connection) Config() Config {
	return c.cfg
}

// Logger returns the connection's own logger, or nil.
func (c *Connection) Logger() tracelog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *Connection) SetLogger(l tracelog.Logger) {
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

// QueryLoggingEnabled reports whether queries outside a request reach the
// connection's logger.
func (c *Connection) QueryLoggingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queryLogging || c.cfg.Log
}

func (c *Connection) EnableQueryLogging(enabled bool) {
	c.mu.Lock()
	c.queryLogging = enabled
	c.mu.Unlock()
}

// Pool returns the pool opened by Registry.Open, or nil.
func (c *Connection) Pool() *pgxpool.Pool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pool
}

// Log implements tracelog.Logger.
func (c *Connection) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	if s := SessionFromContext(ctx); s != nil {
		if l := s.Log(c.cfg.Name); l != nil {
			l.Log(ctx, level, msg, data)
			return
		}
	}
	if !c.QueryLoggingEnabled() {
		return
	}
	if l := c.Logger(); l != nil {
		l.Log(ctx, level, msg, data)
	}
}

// Registry holds named connections in registration order.
type Registry struct {
	logger *zap.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger: logger,
		conns:  make(map[string]*Connection),
	}
}

// Register adds a connection. Role defaults to write and System to
// postgresql.
func (r *Registry) Register(cfg Config) (*Connection, error) {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Role == "" {
		cfg.Role = RoleWrite
	}
	if cfg.System == "" {
		cfg.System = "postgresql"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[cfg.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateConnection, cfg.Name)
	}
	conn := &Connection{cfg: cfg}
	r.conns[cfg.Name] = conn
	r.order = append(r.order, cfg.Name)
	return conn, nil
}

// Get returns the named connection.
func (r *Registry) Get(name string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, name)
	}
	return conn, nil
}

// Configured returns the connection names in registration order.
func (r *Registry) Configured() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Open connects the named connection's pool. Every statement the pool runs
// is reported to the connection through pgx tracelog.
func (r *Registry) Open(ctx context.Context, name string) (*pgxpool.Pool, error) {
	conn, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	conn.openMu.Lock()
	defer conn.openMu.Unlock()
	if pool := conn.Pool(); pool != nil {
		return pool, nil
	}

	poolCfg, err := pgxpool.ParseConfig(conn.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse %s connection config: %w", name, err)
	}
	poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   conn,
		LogLevel: tracelog.LogLevelInfo,
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", name, err)
	}

	conn.mu.Lock()
	conn.pool = pool
	conn.mu.Unlock()

	r.logger.Info("Database connection opened",
		zap.String("connection", name),
		zap.String("system", conn.cfg.System),
		zap.String("role", string(conn.cfg.Role)))
	return pool, nil
}

// Close closes every opened pool.
func (r *Registry) Close() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		conn := r.conns[name]
		conn.mu.Lock()
		if conn.pool != nil {
			conn.pool.Close()
			conn.pool = nil
		}
		conn.mu.Unlock()
	}
}
