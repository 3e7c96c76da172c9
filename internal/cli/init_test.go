package cli

import (
	"context"
	"log/slog"
	"testing"

	"gastos/internal/config"
	applog "gastos/internal/log"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := &config.Config{LogLevel: "debug", LogFormat: "json"}
	logger := SetupLogger(cfg, applog.ComponentWorker)
	defer logger.Close()

	if logger.Component() != applog.ComponentWorker {
		t.Errorf("Component() = %q", logger.Component())
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("LOG_LEVEL=debug should enable debug on the default logger")
	}
}

func TestSignalContext_Cancel(t *testing.T) {
	ctx, cancel := SignalContext(slog.Default())
	cancel()
	<-ctx.Done()
	if ctx.Err() == nil {
		t.Error("context should be cancelled")
	}
}
