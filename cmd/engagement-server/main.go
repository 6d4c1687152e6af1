// Command engagement-server serves the engagement dashboard API.
//
// Configuration comes from ENGAGEMENT_* environment variables and an optional
// YAML file named by ENGAGEMENT_CONFIG; see internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"engagement/internal/adapters/httpapi"
	"engagement/internal/config"
	"engagement/internal/core"
	"engagement/internal/docstore"
	"engagement/internal/logging"
)

var exitFunc = os.Exit

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	exitFunc(cli(ctx, os.Stderr))
}

func cli(ctx context.Context, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: stderr})
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		return 1
	}
	return 0
}

// newServer wires the store, service and HTTP handler for cfg. The returned
// close function releases the store.
func newServer(ctx context.Context, cfg config.Config, logger logging.Logger) (*http.Server, func() error, error) {
	store, err := docstore.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithCleanupBatchSize(cfg.CleanupBatchSize),
	)
	handler := httpapi.NewHandler(svc,
		httpapi.WithLogger(logger),
		httpapi.WithIdentityHeader(cfg.IdentityHeader),
		httpapi.WithGatherer(reg),
	)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, store.Close, nil
}

func serve(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	srv, closeStore, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logger.Warn("close store", "err", cerr)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
