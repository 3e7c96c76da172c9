package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/remote"
	"gastos/internal/storage"
)

const (
	pushTimeout              = 30 * time.Second
	defaultReconnectInterval = 15 * time.Second
)

var ErrTrackerClosed = errors.New("tracker closed")

// TrackerOptions carries the optional collaborators of a Tracker.
type TrackerOptions struct {
	// Remote is nil when no remote document is configured.
	Remote RemoteStore
	// Replay is set only with the queue replay policy.
	Replay ReplayStore
	// Notifier publishes replay requests; optional even with Replay set.
	Notifier ReplayNotifier
	Catalog  core.Catalog
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
	// ReconnectInterval is how often a tracker without a change feed
	// retries the remote. Zero means 15s.
	ReconnectInterval time.Duration
}

type pushJob struct {
	collection core.Collection
	revision   int64
	seq        int64
	op         string
}

// Tracker owns the in-memory collection. Every mutation is saved locally
// before it returns and is then pushed to the remote document by a single
// goroutine, newest snapshot first. Changes from the remote feed replace
// the state wholesale.
type Tracker struct {
	local    LocalStore
	remote   RemoteStore
	replay   ReplayStore
	notifier ReplayNotifier
	catalog  core.Catalog
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	owner    string

	reconnectEvery time.Duration

	mu        sync.RWMutex
	state     core.Collection
	revision  int64
	updatedAt time.Time
	// queued counts jobs handed to the pusher, pushed the newest one it
	// finished with. Remote events are stale while queued > pushed.
	queued int64
	pushed int64
	closed bool
	sub    remote.Subscription
	// remoteBehind is set while the remote copy misses a local commit.
	remoteBehind bool
	// resyncing holds off feed snapshots while a reconnect subscribes with
	// local commits still to push.
	resyncing    bool
	reconnecting bool

	pushCh   chan pushJob
	pushDone chan struct{}

	wake          chan struct{}
	stopReconnect chan struct{}
	reconnectDone chan struct{}
}

func NewTracker(local LocalStore, opts TrackerOptions) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	reconnectEvery := opts.ReconnectInterval
	if reconnectEvery <= 0 {
		reconnectEvery = defaultReconnectInterval
	}
	t := &Tracker{
		local:    local,
		remote:   opts.Remote,
		replay:   opts.Replay,
		notifier: opts.Notifier,
		catalog:  opts.Catalog,
		metrics:  opts.Metrics,
		logger:   logger.With(applog.FieldComponent, applog.ComponentTracker),
		now:      now,
		owner:    leaseOwner("tracker"),
		state:    core.NewCollection(),
		pushCh:   make(chan pushJob, 1),
		pushDone: make(chan struct{}),

		reconnectEvery: reconnectEvery,
		wake:           make(chan struct{}, 1),
		stopReconnect:  make(chan struct{}),
		reconnectDone:  make(chan struct{}),
	}
	go t.runPusher()
	return t
}

// Start loads the initial state, seeds the catalog and subscribes to the
// remote change feed. A failing local store is fatal; a failing remote is
// logged and the tracker runs on the local copy until a background loop
// reaches it again.
func (t *Tracker) Start(ctx context.Context) error {
	c, source, pending, err := t.initialState(ctx)
	if err != nil {
		return err
	}

	now := t.now()
	seeded := core.SeedFromCatalog(&c, t.catalog, now)
	refreshed := core.RefreshCatalogDates(&c, now)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTrackerClosed
	}
	if err := t.local.Save(ctx, c); err != nil {
		t.mu.Unlock()
		t.metrics.LocalSave(err)
		return fmt.Errorf("save initial state: %w", err)
	}
	t.metrics.LocalSave(nil)
	t.commitLocked(c, now)
	if pending || seeded > 0 || refreshed > 0 {
		t.enqueueLocked(applog.OpStartup)
	}
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "Tracker started",
		"source", source,
		applog.FieldRecords, c.Len(),
		"catalog_seeded", seeded,
		"catalog_refreshed", refreshed,
		"replay_pending", pending)

	t.subscribe(ctx)
	if t.remote != nil {
		t.mu.Lock()
		if !t.closed {
			t.reconnecting = true
			go t.runReconnect()
		}
		t.mu.Unlock()
	}
	return nil
}

// initialState prefers the remote document unless a replay is pending,
// in which case the local copy is newer.
func (t *Tracker) initialState(ctx context.Context) (core.Collection, string, bool, error) {
	local, err := t.local.Load(ctx)
	if err != nil {
		return core.Collection{}, "", false, fmt.Errorf("load local state: %w", err)
	}

	pending := false
	if t.replay != nil {
		st, err := t.replay.ReplayStatus(ctx)
		if err != nil {
			t.logger.WarnContext(ctx, "Failed to read replay state", applog.FieldError, err)
		} else {
			pending = st.Status != storage.ReplayClean
		}
		t.metrics.ReplayPending(pending)
	}

	if t.remote == nil || !t.remote.Available() || pending {
		return local, "local", pending && t.remoteAvailable(), nil
	}

	doc, err := t.remote.Load(ctx)
	if err != nil {
		t.logger.WarnContext(ctx, "Remote load failed, using local copy", applog.FieldError, err)
		return local, "local", false, nil
	}
	return doc.Collection, "remote", false, nil
}

func (t *Tracker) remoteAvailable() bool {
	return t.remote != nil && t.remote.Available()
}

// subscribe registers the change feed. It must not run under t.mu: stores
// may deliver the current document before Subscribe returns.
func (t *Tracker) subscribe(ctx context.Context) bool {
	if !t.remoteAvailable() {
		return false
	}
	sub, err := t.remote.Subscribe(ctx, t.onRemoteEvent)
	if err != nil {
		t.logger.WarnContext(ctx, "Remote change feed unavailable", applog.FieldError, err)
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		sub.Close()
		return false
	}
	t.sub = sub
	return true
}

func (t *Tracker) runReconnect() {
	defer close(t.reconnectDone)
	ticker := time.NewTicker(t.reconnectEvery)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopReconnect:
			return
		case <-ticker.C:
		case <-t.wake:
		}
		t.reconnect()
	}
}

func (t *Tracker) wakeReconnect() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// reconnect initializes the remote when needed and subscribes to its feed.
// Local commits the remote missed are pushed once the feed is up; the
// snapshots it delivers before then are ignored.
func (t *Tracker) reconnect() {
	t.mu.RLock()
	skip := t.closed || t.sub != nil
	t.mu.RUnlock()
	if skip {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if !t.remote.Available() {
		if err := t.remote.Initialize(ctx); err != nil {
			t.logger.DebugContext(ctx, "Remote still unavailable", applog.FieldError, err)
			return
		}
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.resyncing = t.remoteBehind || t.queued > t.pushed
	t.mu.Unlock()

	ok := t.subscribe(ctx)

	t.mu.Lock()
	behind := t.resyncing || t.remoteBehind
	t.resyncing = false
	if ok && behind && !t.closed {
		t.enqueueLocked(applog.OpReconnect)
	}
	t.mu.Unlock()

	if ok {
		t.logger.InfoContext(ctx, "Subscribed to remote change feed",
			applog.FieldOperation, applog.OpReconnect,
			"pushing_local", behind)
	}
}

// Snapshot returns a copy of the current collection.
func (t *Tracker) Snapshot() core.Collection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// Revision increases with every change of the in-memory state.
func (t *Tracker) Revision() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.revision
}

func (t *Tracker) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}

// Add validates r and appends it to cat. An empty id is generated.
func (t *Tracker) Add(ctx context.Context, cat core.Category, r core.Record) (core.Record, core.Collection, error) {
	if !cat.Valid() {
		return core.Record{}, core.Collection{}, core.ErrInvalidCategory
	}
	if r.ID == "" {
		r.ID = core.NewRecordID(t.now())
	}
	if err := r.Validate(); err != nil {
		return core.Record{}, core.Collection{}, err
	}
	c, err := t.mutate(ctx, applog.OpCreate, func(c *core.Collection) error {
		return c.Add(cat, r)
	})
	if err != nil {
		return core.Record{}, core.Collection{}, err
	}
	t.logger.InfoContext(ctx, "Record added",
		applog.FieldCategory, cat.Key(),
		applog.FieldRecordID, r.ID)
	return r, c, nil
}

// Edit replaces date, description and amount of the record id in cat.
func (t *Tracker) Edit(ctx context.Context, cat core.Category, id core.RecordID, changes core.Record) (core.Record, core.Collection, error) {
	if !cat.Valid() {
		return core.Record{}, core.Collection{}, core.ErrInvalidCategory
	}
	changes.ID = id
	if err := changes.Validate(); err != nil {
		return core.Record{}, core.Collection{}, err
	}
	var updated core.Record
	c, err := t.mutate(ctx, applog.OpUpdate, func(c *core.Collection) error {
		var err error
		updated, err = c.Update(cat, id, changes)
		return err
	})
	if err != nil {
		return core.Record{}, core.Collection{}, err
	}
	t.logger.InfoContext(ctx, "Record updated",
		applog.FieldCategory, cat.Key(),
		applog.FieldRecordID, id)
	return updated, c, nil
}

// Remove deletes the record id from cat. Fails with core.ErrNotFound and
// leaves the state untouched when absent.
func (t *Tracker) Remove(ctx context.Context, cat core.Category, id core.RecordID) (core.Record, core.Collection, error) {
	if !cat.Valid() {
		return core.Record{}, core.Collection{}, core.ErrInvalidCategory
	}
	var removed core.Record
	c, err := t.mutate(ctx, applog.OpDelete, func(c *core.Collection) error {
		var err error
		removed, err = c.Remove(cat, id)
		return err
	})
	if err != nil {
		return core.Record{}, core.Collection{}, err
	}
	t.logger.InfoContext(ctx, "Record removed",
		applog.FieldCategory, cat.Key(),
		applog.FieldRecordID, id)
	return removed, c, nil
}

// ReplaceAll overwrites the whole collection. Records without id get one.
func (t *Tracker) ReplaceAll(ctx context.Context, next core.Collection) (core.Collection, error) {
	next = next.Clone()
	next.Normalize()
	now := t.now()
	for _, cat := range core.Categories() {
		recs := next.Records(cat)
		for i := range recs {
			if recs[i].ID == "" {
				recs[i].ID = core.NewRecordID(now)
			}
		}
	}
	c, err := t.mutate(ctx, applog.OpReplace, func(c *core.Collection) error {
		*c = next
		return nil
	})
	if err != nil {
		return core.Collection{}, err
	}
	t.logger.InfoContext(ctx, "Collection replaced", applog.FieldRecords, c.Len())
	return c, nil
}

// RefreshCatalogDates moves catalog records to the current month. It
// reports how many records changed; nothing is saved when none did.
func (t *Tracker) RefreshCatalogDates(ctx context.Context) (int, error) {
	now := t.now()
	changed := 0
	_, err := t.mutate(ctx, applog.OpRefresh, func(c *core.Collection) error {
		changed = core.RefreshCatalogDates(c, now)
		if changed == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return changed, nil
}

var errUnchanged = errors.New("unchanged")

func (t *Tracker) mutate(ctx context.Context, op string, fn func(*core.Collection) error) (core.Collection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.Collection{}, ErrTrackerClosed
	}

	next := t.state.Clone()
	if err := fn(&next); err != nil {
		return core.Collection{}, err
	}
	if err := t.local.Save(ctx, next); err != nil {
		t.metrics.LocalSave(err)
		t.logger.ErrorContext(ctx, "Local save failed", applog.FieldOperation, op, applog.FieldError, err)
		return core.Collection{}, fmt.Errorf("save local state: %w", err)
	}
	t.metrics.LocalSave(nil)
	t.commitLocked(next, t.now())
	t.enqueueLocked(op)
	return next.Clone(), nil
}

func (t *Tracker) commitLocked(c core.Collection, at time.Time) {
	t.state = c
	t.revision++
	t.updatedAt = at
	for _, cat := range core.Categories() {
		t.metrics.Records(cat.Key(), len(c.Records(cat)))
	}
}

// enqueueLocked hands the current state to the pusher, replacing any
// snapshot it has not picked up yet.
func (t *Tracker) enqueueLocked(op string) {
	if t.remote == nil {
		return
	}
	t.queued++
	job := pushJob{collection: t.state.Clone(), revision: t.revision, seq: t.queued, op: op}
	for {
		select {
		case t.pushCh <- job:
			return
		default:
		}
		select {
		case <-t.pushCh:
		default:
		}
	}
}

func (t *Tracker) runPusher() {
	defer close(t.pushDone)
	for job := range t.pushCh {
		t.push(job)
		t.mu.Lock()
		if job.seq > t.pushed {
			t.pushed = job.seq
		}
		t.mu.Unlock()
	}
}

// push writes one snapshot. Failures never reach the caller of the
// mutation; with a replay store they are queued for replay. With a replay
// store the write also holds the push lease, so a replayer never lands an
// older snapshot on top of this one.
func (t *Tracker) push(job pushJob) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	if t.replay != nil {
		release, err := holdPushLease(ctx, t.replay, t.owner, t.logger)
		if err != nil {
			t.pushFailed(job, err)
			return
		}
		defer release()
	}

	if err := t.remote.Save(ctx, job.collection); err != nil {
		t.pushFailed(job, err)
		return
	}
	t.logger.DebugContext(ctx, "Pushed snapshot to remote",
		applog.FieldOperation, job.op,
		applog.FieldRevision, job.revision)

	t.mu.Lock()
	latest := job.revision == t.revision
	if latest {
		t.remoteBehind = false
	}
	subscribed := t.sub != nil
	t.mu.Unlock()

	// An older snapshot leaves the replay state alone; the newer job
	// queued behind it settles it.
	if latest && t.replay != nil {
		if err := t.replay.MarkReplayDone(ctx); err != nil {
			t.logger.ErrorContext(ctx, "Failed to clear replay state", applog.FieldError, err)
		} else {
			t.metrics.ReplayPending(false)
		}
	}
	if !subscribed {
		t.wakeReconnect()
	}
}

// pushFailed records a failed push. It uses its own context: the push
// context may be the one that expired.
func (t *Tracker) pushFailed(job pushJob, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.mu.Lock()
	t.remoteBehind = true
	t.mu.Unlock()

	if remote.Permanent(err) || t.replay == nil {
		t.logger.WarnContext(ctx, "Remote push failed, keeping local copy",
			applog.FieldOperation, job.op,
			applog.FieldRevision, job.revision,
			applog.FieldError, err)
		return
	}

	t.logger.WarnContext(ctx, "Remote push failed, queued for replay",
		applog.FieldOperation, job.op,
		applog.FieldRevision, job.revision,
		applog.FieldError, err)
	if merr := t.replay.MarkReplayPending(ctx, err.Error()); merr != nil {
		t.logger.ErrorContext(ctx, "Failed to mark replay pending", applog.FieldError, merr)
		return
	}
	t.metrics.ReplayPending(true)
	if t.notifier != nil {
		if perr := t.notifier.PublishRemoteReplay(ctx, job.revision, err.Error()); perr != nil {
			t.logger.WarnContext(ctx, "Failed to publish replay request", applog.FieldError, perr)
		}
	}
}

// onRemoteEvent applies a snapshot from the change feed. Echoes of the
// current state and snapshots that arrive while a local push is still
// outstanding are ignored; the outstanding push is the later write.
func (t *Tracker) onRemoteEvent(e remote.Event) {
	if !e.OK() {
		t.metrics.RemoteEvent(remote.Outcome(e.Err))
		t.logger.Warn("Remote change feed error", applog.FieldError, e.Err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	replayPending := false
	if t.replay != nil {
		if st, err := t.replay.ReplayStatus(ctx); err == nil {
			replayPending = st.Status != storage.ReplayClean
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	incoming := e.Document.Collection
	if replayPending || t.resyncing || t.queued > t.pushed || incoming.Equal(t.state) {
		t.metrics.RemoteEvent(metrics.OutcomeIgnored)
		return
	}

	if err := t.local.Save(ctx, incoming); err != nil {
		t.metrics.LocalSave(err)
		t.logger.ErrorContext(ctx, "Failed to save remote snapshot locally", applog.FieldError, err)
	} else {
		t.metrics.LocalSave(nil)
	}
	at := e.Document.UpdatedAt
	if at.IsZero() {
		at = t.now()
	}
	t.commitLocked(incoming.Clone(), at)
	t.metrics.RemoteEvent(metrics.OutcomeApplied)
	t.logger.InfoContext(ctx, "Applied remote snapshot",
		applog.FieldRevision, t.revision,
		applog.FieldRecords, incoming.Len())
}

// Close stops the change feed and waits for outstanding pushes.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sub := t.sub
	t.sub = nil
	close(t.pushCh)
	close(t.stopReconnect)
	reconnecting := t.reconnecting
	t.mu.Unlock()

	var errs []error
	if sub != nil {
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscription: %w", err))
		}
	}
	if reconnecting {
		select {
		case <-t.reconnectDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("stop reconnect loop: %w", ctx.Err()))
		}
	}
	select {
	case <-t.pushDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain remote pushes: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}
