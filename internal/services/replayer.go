package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	applog "gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/remote"
	"gastos/internal/storage"
)

// Replayer pushes the latest local snapshot to the remote document when
// the replay state says the remote copy is behind.
type Replayer struct {
	local      LocalStore
	remote     RemoteStore
	state      ReplayStore
	maxRetries int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	owner      string
}

// maxCatchUp bounds how often one replay pushes again because the local
// store moved on during the remote write.
const maxCatchUp = 3

func NewReplayer(local LocalStore, rs RemoteStore, state ReplayStore, maxRetries int, m *metrics.Metrics, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Replayer{
		local:      local,
		remote:     rs,
		state:      state,
		maxRetries: maxRetries,
		metrics:    m,
		logger:     logger.With(applog.FieldComponent, applog.ComponentReplay),
		owner:      leaseOwner("replayer"),
	}
}

// ReplayPending replays once if a replay is pending. It reports whether an
// attempt was made.
func (r *Replayer) ReplayPending(ctx context.Context) (bool, error) {
	st, err := r.state.ReplayStatus(ctx)
	if err != nil {
		return false, err
	}
	r.metrics.ReplayPending(st.Status != storage.ReplayClean)
	if !st.Pending() {
		return false, nil
	}
	return true, r.replay(ctx, st)
}

func (r *Replayer) replay(ctx context.Context, st storage.ReplayState) error {
	if !r.remote.Available() {
		if err := r.remote.Initialize(ctx); err != nil {
			return r.fail(ctx, err)
		}
	}

	// The tracker pushes under the same lease, so no snapshot older than
	// the one loaded below can reach the remote after it.
	release, err := holdPushLease(ctx, r.state, r.owner, r.logger)
	if err != nil {
		return err
	}
	defer release()

	// A push that ran while this one waited may have settled the state.
	cur, err := r.state.ReplayStatus(ctx)
	if err != nil {
		return err
	}
	if !cur.Pending() {
		return nil
	}

	c, err := r.local.Load(ctx)
	if err != nil {
		return fmt.Errorf("load local snapshot: %w", err)
	}
	for i := 0; ; i++ {
		if err := r.remote.Save(ctx, c); err != nil {
			return r.fail(ctx, err)
		}
		latest, err := r.local.Load(ctx)
		if err != nil {
			return fmt.Errorf("load local snapshot: %w", err)
		}
		if latest.Equal(c) {
			break
		}
		if i == maxCatchUp {
			r.logger.InfoContext(ctx, "Local snapshot kept changing, replay stays pending")
			return nil
		}
		c = latest
	}

	if err := r.state.MarkReplayDone(ctx); err != nil {
		return err
	}
	r.metrics.ReplayAttempt(metrics.OutcomeOK)
	r.metrics.ReplayPending(false)
	r.logger.InfoContext(ctx, "Replayed local snapshot to remote",
		applog.FieldRecords, c.Len(),
		"attempts", st.Attempts+1)
	return nil
}

// fail records a failed attempt. Failures the remote will repeat on every
// attempt, such as access rules or an oversized document, are not retried.
func (r *Replayer) fail(ctx context.Context, cause error) error {
	r.metrics.ReplayAttempt(remote.Outcome(cause))
	limit := r.maxRetries
	if remote.Permanent(cause) {
		limit = 1
	}
	st, err := r.state.MarkReplayAttemptFailed(ctx, cause.Error(), limit)
	if err != nil {
		return errors.Join(cause, err)
	}
	if st.Status == storage.ReplayFailed {
		r.logger.ErrorContext(ctx, "Replay failed permanently",
			"attempts", st.Attempts,
			applog.FieldError, cause)
	} else {
		r.logger.WarnContext(ctx, "Replay attempt failed",
			"attempts", st.Attempts,
			applog.FieldError, cause)
	}
	return fmt.Errorf("replay: %w", cause)
}

// RetryFailed moves a failed replay back to pending.
func (r *Replayer) RetryFailed(ctx context.Context) (bool, error) {
	return r.state.RetryFailedReplay(ctx)
}

// ReplayProcessorConfig holds configuration for the replay processor
type ReplayProcessorConfig struct {
	// PollInterval is how often to check the replay state (default: 30s)
	PollInterval time.Duration
}

// DefaultReplayProcessorConfig returns sensible defaults
func DefaultReplayProcessorConfig() ReplayProcessorConfig {
	return ReplayProcessorConfig{PollInterval: 30 * time.Second}
}

// ReplayProcessor polls the replay state and runs the Replayer in process.
type ReplayProcessor struct {
	replayer *Replayer
	config   ReplayProcessorConfig
	logger   *slog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReplayProcessor(replayer *Replayer, config ReplayProcessorConfig) *ReplayProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultReplayProcessorConfig().PollInterval
	}
	logger := slog.Default()
	if replayer != nil {
		logger = replayer.logger
	}
	return &ReplayProcessor{
		replayer: replayer,
		config:   config,
		logger:   logger,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ReplayProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("replay processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Replay processor started", "poll_interval", p.config.PollInterval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ReplayProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Replay processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Replay processor stop timed out")
		return ctx.Err()
	}
}

func (p *ReplayProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReplayProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.process(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.process(ctx)
		}
	}
}

func (p *ReplayProcessor) process(ctx context.Context) {
	if _, err := p.replayer.ReplayPending(ctx); err != nil && ctx.Err() == nil {
		p.logger.DebugContext(ctx, "Replay cycle ended with error", applog.FieldError, err)
	}
}
