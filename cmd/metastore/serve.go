package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/metastore"
	"github.com/kailas-cloud/metastore/async"
	"github.com/kailas-cloud/metastore/internal/metrics"
	chiTransport "github.com/kailas-cloud/metastore/internal/transport/chi"
	"github.com/kailas-cloud/metastore/internal/version"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP document gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.HTTP.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override http.port from the configuration")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	logger := a.logger
	logger.Info("Starting metastore gateway",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", a.cfg.HTTP.Port),
		zap.String("engine", a.cfg.Engine.Driver),
		zap.Bool("multi_tenancy", a.cfg.Tenancy.Enabled),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pool, err := async.NewPool(a.cfg.Executor.Workers, a.cfg.Executor.QueueSize, async.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	// Intake stays open until the HTTP server has drained.
	if err := pool.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	defer func() {
		if err := pool.Stop(poolStopTimeout); err != nil {
			logger.Warn("Worker pool did not drain", zap.Error(err))
		}
	}()

	client, err := metastore.New(ctx, a.clientOptions(pool, reg)...)
	if err != nil {
		return fmt.Errorf("open %s engine: %w", a.cfg.Engine.Driver, err)
	}
	defer func() { _ = client.Close() }()

	httpMetrics, err := metrics.NewHTTP(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}
	handler := chiTransport.NewServer(client, logger).Router(chiTransport.RouterConfig{
		APIKeys:      a.cfg.Auth.APIKeys,
		MaxBodyBytes: a.cfg.HTTP.MaxBodyBytes,
		Metrics:      httpMetrics,
		Gatherer:     reg,
	})

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}
