package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ar-conmit/hedera-mirror-node/config"
	"github.com/ar-conmit/hedera-mirror-node/historize"
	"github.com/ar-conmit/hedera-mirror-node/ingest"
	"github.com/ar-conmit/hedera-mirror-node/logging"
	"github.com/ar-conmit/hedera-mirror-node/merge"
	"github.com/ar-conmit/hedera-mirror-node/metrics"
	"github.com/ar-conmit/hedera-mirror-node/resilience"
	"github.com/ar-conmit/hedera-mirror-node/server"
	"github.com/ar-conmit/hedera-mirror-node/source"
	"github.com/ar-conmit/hedera-mirror-node/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mirror importer: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewComponentLogger(cfg.Service.Name, cfg.Service.Version, logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.LogStartup(logging.StartupConfig{
		SourceDirectory: cfg.Source.Directory,
		DatabaseDriver:  cfg.Database.Driver,
		FlushRows:       cfg.Commit.FlushRows,
		HealthPort:      cfg.Service.HealthPort,
		GRPCPort:        cfg.Service.GRPCPort,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database, cfg.Commit.FlushRows, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	collector := metrics.NewCollector()
	registry := merge.NewRegistry()
	committer := historize.NewCommitter(store, registry, logger, collector)

	policy := resilience.DefaultRetryPolicy(storage.IsRetryable)
	policy.MaxAttempts = cfg.Commit.MaxRetries
	policy.InitialDelay = cfg.Commit.InitialBackoff()
	policy.MaxDelay = cfg.Commit.MaxBackoff()
	retry := resilience.NewRetryManager(policy, logger.With("retry"), collector.CommitRetried)

	pipeline := ingest.NewPipeline(registry, committer, store, retry, collector, logger)

	healthServer := server.NewHealthServer(cfg.Service.HealthPort, pipeline, store, collector, logger)
	if err := healthServer.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		healthServer.Stop(shutdownCtx)
	}()

	var grpcHealth *server.GRPCHealth
	if cfg.Service.GRPCPort > 0 {
		grpcHealth = server.NewGRPCHealth(cfg.Service.GRPCPort, logger)
		if err := grpcHealth.Start(); err != nil {
			return err
		}
		defer grpcHealth.Stop()
		grpcHealth.SetServing(true)
	}

	stream := source.NewDirectoryStream(cfg.Source.Directory, cfg.Source.Follow, cfg.Source.PollInterval(), logger)
	err = pipeline.Run(ctx, stream)
	if grpcHealth != nil {
		grpcHealth.SetServing(false)
	}

	switch {
	case err == nil:
		logger.Info().Interface("stats", pipeline.Stats()).Msg("Source exhausted")
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info().Msg("Shutdown complete")
		return nil
	default:
		return err
	}
}
