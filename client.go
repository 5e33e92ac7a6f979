package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/metastore/async"
	"github.com/kailas-cloud/metastore/internal/db"
	dbElastic "github.com/kailas-cloud/metastore/internal/db/elastic"
	dbSQLite "github.com/kailas-cloud/metastore/internal/db/sqlite"
	dbValkey "github.com/kailas-cloud/metastore/internal/db/valkey"
	"github.com/kailas-cloud/metastore/internal/metrics"
	"github.com/kailas-cloud/metastore/internal/privilege"
)

const defaultReadinessTimeout = 10 * time.Second

const (
	driverSQLite  = "sqlite"
	driverValkey  = "valkey"
	driverElastic = "elastic"
	driverCustom  = "custom"
)

// readiness is implemented by engines that need to wait for a remote server.
type readiness interface {
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Client is the metastore entry point. It is safe for concurrent use.
type Client struct {
	engine       db.Engine
	multiTenancy bool
	executor     async.Executor
	obs          *observer
}

// New creates a Client and connects to the configured engine.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{driver: driverSQLite, readinessTimeout: defaultReadinessTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	engine, driver := cfg.engine, cfg.driver
	if engine != nil {
		driver = driverCustom
	} else {
		var err error
		engine, err = createEngine(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	if r, ok := engine.(readiness); ok {
		if err := r.WaitForReady(ctx, cfg.readinessTimeout); err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("metastore: engine not ready: %w", err)
		}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	if cfg.metricsReg != nil {
		instrumented, err := metrics.InstrumentEngine(engine, driver, cfg.metricsReg)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("metastore: instrument engine: %w", err)
		}
		engine = instrumented
	}

	exec := cfg.executor
	if exec == nil {
		exec = async.Go
	}
	return &Client{
		engine:       privilege.Guard(engine),
		multiTenancy: cfg.multiTenancy,
		executor:     exec,
		obs:          obs,
	}, nil
}

func createEngine(ctx context.Context, cfg *clientConfig) (db.Engine, error) {
	switch cfg.driver {
	case driverSQLite:
		e, err := dbSQLite.Open(ctx, cfg.dsn)
		if err != nil {
			return nil, fmt.Errorf("metastore: open sqlite engine: %w", err)
		}
		return e, nil
	case driverValkey:
		s, err := dbValkey.NewStore(dbValkey.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
			Prefix:   cfg.prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("metastore: create valkey store: %w", err)
		}
		return s, nil
	case driverElastic:
		s, err := dbElastic.NewStore(dbElastic.Config{
			Addresses: cfg.addrs,
			Username:  cfg.username,
			Password:  cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("metastore: create elastic store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("metastore: unknown driver %q", cfg.driver)
	}
}

// Close releases the engine.
func (c *Client) Close() error {
	if c.engine == nil {
		return nil
	}
	return c.engine.Close()
}

// Ping checks engine connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.engine.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// MultiTenancy reports whether searches are restricted to a tenant.
func (c *Client) MultiTenancy() bool { return c.multiTenancy }

func (c *Client) exec(e async.Executor) async.Executor {
	if e == nil {
		return c.executor
	}
	return e
}
