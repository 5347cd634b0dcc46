package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ora2es/migsim/internal/api"
	"github.com/ora2es/migsim/internal/clock/system"
	"github.com/ora2es/migsim/internal/config"
	idgen "github.com/ora2es/migsim/internal/id/uuid"
	"github.com/ora2es/migsim/internal/logging"
	"github.com/ora2es/migsim/internal/mapping"
	"github.com/ora2es/migsim/internal/migration"
	"github.com/ora2es/migsim/internal/progress"
	"github.com/ora2es/migsim/internal/progress/sinks"
	mempub "github.com/ora2es/migsim/internal/publisher/memory"
	pubsubpub "github.com/ora2es/migsim/internal/publisher/pubsub"
	"github.com/ora2es/migsim/internal/runner"
	"github.com/ora2es/migsim/internal/storage/gcs"
	"github.com/ora2es/migsim/internal/storage/local"
	memstore "github.com/ora2es/migsim/internal/storage/memory"
	"github.com/ora2es/migsim/internal/storage/postgres"
	"github.com/ora2es/migsim/internal/store"
)

// newServeCmd creates the 'serve' subcommand, which runs the HTTP service.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the migration HTTP service",
		Long: `Starts the HTTP API for mapping configurations and migration jobs,
with progress persistence, Prometheus metrics, and optional Pub/Sub
notifications, all selected through the configuration file.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, closeJobs, err := buildJobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init job store: %w", err)
	}
	defer closeJobs()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	pub, closePub, err := buildPublisher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer closePub()

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("hub")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		sinks.NewStoreSink(jobs, logger.Named("persist")),
	)

	clock := system.New()
	run := runner.New(runner.Config{
		TickInterval: cfg.TickInterval(),
		NotifyTopic:  cfg.PubSub.TopicName,
	}, hub, pub, clock, logger.Named("runner"))

	server := api.NewServer(api.Dependencies{
		Jobs:     jobs,
		Runner:   run,
		Mappings: mapping.NewRegistry(),
		Blobs:    blobs,
		IDGen:    idgen.New(),
		Clock:    clock,
		Gatherer: registry,
		Logger:   logger.Named("api"),
	}, cfg)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpSrv.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", zap.Error(err))
	}
	run.Shutdown()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

func buildJobStore(ctx context.Context, cfg config.Config) (store.JobRepository, func(), error) {
	switch cfg.DB.Driver {
	case "postgres":
		s, err := postgres.NewJobStore(ctx, postgres.JobStoreConfig{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMin) * time.Minute,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return memstore.NewJobStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown db driver %q", cfg.DB.Driver)
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (migration.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "local":
		return local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
	case "memory":
		return memstore.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (migration.Publisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return mempub.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	pub := pubsubpub.New(client)
	return pub, func() { _ = pub.Close() }, nil
}
