package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/backend"
	"gastos/internal/cli"
	"gastos/internal/core"
	apphttp "gastos/internal/http"
	applog "gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	appLogger := cli.SetupLogger(cfg, applog.ComponentApp)
	defer appLogger.Close()
	logger := appLogger.Logger

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
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Store cleanup failed", applog.FieldError, err)
		}
	}()

	catalog, err := core.LoadCatalogFile(cfg.CatalogFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("No catalog file, starting with an empty catalog", "path", cfg.CatalogFile)
		catalog = core.Catalog{FixedMonthly: []core.CatalogItem{}}
	case err != nil:
		logger.Error("Failed to load catalog", applog.FieldError, err, "path", cfg.CatalogFile)
		os.Exit(1)
	default:
		logger.Info("Catalog loaded", applog.FieldRecords, len(catalog.FixedMonthly))
	}

	opts := res.TrackerOptions()
	opts.Catalog = catalog
	opts.Metrics = m
	opts.Logger = logger
	opts.ReconnectInterval = cfg.RemoteReconnect
	tracker := services.NewTracker(res.Local, opts)
	if err := tracker.Start(ctx); err != nil {
		logger.Error("Failed to start tracker", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		CacheSize:      cfg.CacheSize,
		CacheTTL:       cfg.CacheTTL,
	}, apphttp.Deps{
		Tracker: tracker,
		Catalog: catalog,
		Ready:   res.Ready,
		Metrics: m,
		Logger:  logger,
	})

	var processor *services.ReplayProcessor
	if res.Replay != nil && res.Remote != nil {
		replayer := services.NewReplayer(res.Local, res.Remote, res.Replay, cfg.SyncMaxRetries, m, logger)
		processor = services.NewReplayProcessor(replayer, services.ReplayProcessorConfig{PollInterval: cfg.SyncInterval})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting gastos server",
			"port", cfg.Port,
			"local_backend", cfg.LocalBackend,
			"remote_backend", cfg.RemoteBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return services.NewCatalogRefresher(tracker, time.Hour, logger).Run(gctx)
	})

	if processor != nil {
		if err := processor.Start(gctx); err != nil {
			logger.Error("Failed to start replay processor", applog.FieldError, err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if processor != nil {
			processor.Stop(shutdownCtx)
		}
		if err := tracker.Close(shutdownCtx); err != nil {
			logger.Error("Tracker shutdown error", applog.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
