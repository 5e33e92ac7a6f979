package metastore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore/async"
	"github.com/kailas-cloud/metastore/internal/db"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "sqlite", "valkey" or "elastic"
	dsn      string
	addrs    []string
	username string
	password string
	prefix   string

	engine           db.Engine
	readinessTimeout time.Duration

	multiTenancy bool
	executor     async.Executor

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithSQLite stores documents in an embedded SQLite database. An empty dsn
// opens a private in-memory database. This is the default.
func WithSQLite(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverSQLite
		c.dsn = dsn
	})
}

// WithValkey configures the client to connect to a Valkey instance with the
// JSON and search modules loaded.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverValkey
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithKeyPrefix overrides the Valkey key prefix.
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.prefix = prefix
	})
}

// WithElastic configures the client to talk to an Elasticsearch cluster.
// Empty credentials disable basic auth.
func WithElastic(addr, username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverElastic
		c.addrs = []string{addr}
		c.username = username
		c.password = password
	})
}

// WithAddresses replaces the server list of the Valkey or Elasticsearch
// driver, for clustered deployments.
func WithAddresses(addrs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = append([]string(nil), addrs...)
	})
}

// WithReadinessTimeout bounds how long New waits for a remote engine.
// Defaults to 10s.
func WithReadinessTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.readinessTimeout = d
	})
}

// WithEngine uses an already constructed engine. The client takes ownership
// and closes it on Close.
//
// The engine contract lives in an internal package, so WithEngine is only
// usable from within this module, mainly by tests. Other callers select a
// driver with WithSQLite, WithValkey or WithElastic.
func WithEngine(e db.Engine) Option {
	return optionFunc(func(c *clientConfig) {
		c.engine = e
	})
}

// WithMultiTenancy makes every search require a tenant id and restricts its
// results to that tenant.
func WithMultiTenancy(enabled bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.multiTenancy = enabled
	})
}

// WithExecutor sets the executor used when an operation is given none.
// Defaults to async.Go.
func WithExecutor(exec async.Executor) Option {
	return optionFunc(func(c *clientConfig) {
		c.executor = exec
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
