package worker

import (
	"context"
	"fmt"
	"log/slog"

	"gastos/internal/amqp"
	applog "gastos/internal/log"
	"gastos/internal/services"
)

// ReplayWorker pushes the local snapshot to the remote document when asked
// to over AMQP, and on a timer as a backup for lost messages.
type ReplayWorker struct {
	replayer *services.Replayer
	logger   *slog.Logger
}

func NewReplayWorker(replayer *services.Replayer, logger *slog.Logger) *ReplayWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayWorker{
		replayer: replayer,
		logger:   logger.With(applog.FieldComponent, applog.ComponentWorker),
	}
}

// HandleReplayMessage processes a single replay request from AMQP. A failed
// remote write is recorded in the replay state and the message is still
// acknowledged; the periodic check retries it. Only a broken replay state
// makes the message go back to the queue.
func (w *ReplayWorker) HandleReplayMessage(ctx context.Context, msg *amqp.RemoteReplayMessage) error {
	w.logger.InfoContext(ctx, "Processing replay message",
		applog.FieldRevision, msg.Revision,
		"reason", msg.Reason)

	attempted, err := w.replayer.ReplayPending(ctx)
	if !attempted && err != nil {
		return fmt.Errorf("read replay state: %w", err)
	}
	if !attempted {
		w.logger.InfoContext(ctx, "Nothing to replay", applog.FieldRevision, msg.Revision)
		return nil
	}
	if err != nil {
		w.logger.WarnContext(ctx, "Replay attempt failed, will retry on next check",
			applog.FieldRevision, msg.Revision,
			applog.FieldError, err)
	}
	return nil
}

// ProcessPending replays if the replay state is pending. This is a backup
// mechanism in case AMQP messages are lost.
func (w *ReplayWorker) ProcessPending(ctx context.Context) error {
	attempted, err := w.replayer.ReplayPending(ctx)
	if err != nil {
		return err
	}
	if attempted {
		w.logger.InfoContext(ctx, "Pending replay processed")
	}
	return nil
}

// StartupReplayCheck gives a failed replay another chance when the worker
// starts, then processes whatever is pending.
func (w *ReplayWorker) StartupReplayCheck(ctx context.Context) error {
	retried, err := w.replayer.RetryFailed(ctx)
	if err != nil {
		return fmt.Errorf("reset failed replay: %w", err)
	}
	if retried {
		w.logger.InfoContext(ctx, "Failed replay reset to pending on startup")
	}
	return w.ProcessPending(ctx)
}
