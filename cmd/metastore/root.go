package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore"
	"github.com/kailas-cloud/metastore/async"
	"github.com/kailas-cloud/metastore/internal/config"
	logpkg "github.com/kailas-cloud/metastore/internal/logger"
	"github.com/kailas-cloud/metastore/internal/version"
)

const poolStopTimeout = 5 * time.Second

// app carries what every subcommand needs after flag parsing.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "metastore",
		Short:         "Data object store over SQLite, Valkey or Elasticsearch",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.env, "env", config.GetEnv(), "configuration environment (local, dev, prod)")

	root.AddCommand(
		newServeCmd(a),
		newPutCmd(a),
		newGetCmd(a),
		newDeleteCmd(a),
		newSearchCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.env)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logpkg.NewLogger(a.env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.cfg, a.logger = cfg, logger
	return nil
}

// clientOptions maps the configuration onto client options.
func (a *app) clientOptions(exec async.Executor, reg prometheus.Registerer) []metastore.Option {
	e := a.cfg.Engine
	opts := []metastore.Option{
		metastore.WithLogger(a.logger),
		metastore.WithMultiTenancy(a.cfg.Tenancy.Enabled),
	}
	switch e.Driver {
	case config.DriverValkey:
		opts = append(opts,
			metastore.WithValkey(e.Valkey.Addrs[0], e.Valkey.Password),
			metastore.WithAddresses(e.Valkey.Addrs...),
			metastore.WithKeyPrefix(e.Valkey.KeyPrefix),
		)
	case config.DriverElastic:
		opts = append(opts,
			metastore.WithElastic(e.Elastic.Addresses[0], e.Elastic.Username, e.Elastic.Password),
			metastore.WithAddresses(e.Elastic.Addresses...),
		)
	default:
		opts = append(opts, metastore.WithSQLite(e.SQLite.DSN))
	}
	if e.ReadinessTimeout > 0 {
		opts = append(opts, metastore.WithReadinessTimeout(time.Duration(e.ReadinessTimeout)*time.Second))
	}
	if exec != nil {
		opts = append(opts, metastore.WithExecutor(exec))
	}
	if reg != nil {
		opts = append(opts, metastore.WithPrometheus(reg))
	}
	return opts
}

// newClient opens a client for one-shot commands. Engine calls run inline
// on the caller's goroutine.
func (a *app) newClient(ctx context.Context) (*metastore.Client, error) {
	client, err := metastore.New(ctx, a.clientOptions(async.Inline, nil)...)
	if err != nil {
		return nil, fmt.Errorf("open %s engine: %w", a.cfg.Engine.Driver, err)
	}
	return client, nil
}
