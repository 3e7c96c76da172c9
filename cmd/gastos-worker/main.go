package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/backend"
	"gastos/internal/cli"
	applog "gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/services"
	"gastos/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	appLogger := cli.SetupLogger(cfg, applog.ComponentWorker)
	defer appLogger.Close()
	logger := appLogger.Logger

	logger.Info("Starting gastos-worker")

	if !cfg.ReplayEnabled() || cfg.AMQPURL == "" {
		logger.Error("The worker needs a remote backend, REMOTE_REPLAY=queue and AMQP_URL")
		os.Exit(1)
	}
	if cfg.LocalBackend == "memory" {
		logger.Error("The worker cannot read a memory local store from another process")
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	m := metrics.New()
	res, err := backend.NewFactory(logger).Create(ctx, backendCfg, m)
	if err != nil {
		logger.Error("Failed to initialize stores", applog.FieldError, err)
		os.Exit(1)
	}
	defer res.Cleanup()

	if res.Notifier == nil {
		logger.Error("AMQP client unavailable")
		os.Exit(1)
	}

	replayer := services.NewReplayer(res.Local, res.Remote, res.Replay, cfg.SyncMaxRetries, m, logger)
	replayWorker := worker.NewReplayWorker(replayer, logger)

	logger.Info("Performing startup replay check...")
	if err := replayWorker.StartupReplayCheck(ctx); err != nil {
		// Don't exit - the periodic check retries
		logger.Error("Failed startup replay check", applog.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := res.Notifier.ConsumeRemoteReplay(gctx, replayWorker.HandleReplayMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Backup for messages lost while the broker was away.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := replayWorker.ProcessPending(gctx); err != nil && gctx.Err() == nil {
					logger.Error("Periodic replay failed", applog.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", applog.FieldError, err)
		res.Cleanup()
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
