// Package remote mirrors the collection to one shared document. The
// document is replaced whole on every write, so the last writer wins.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"gastos/internal/core"
	"gastos/internal/metrics"
	"gastos/internal/resilience"
)

const defaultTimeout = 10 * time.Second

// Event is delivered by Subscribe: either a normalized document or the
// error that broke the feed.
type Event struct {
	Document Document
	Err      error
}

func (e Event) OK() bool { return e.Err == nil }

// Sync guards a DocumentStore: calls fail fast with ErrUnavailable until
// Initialize succeeds, every failure is classified as ErrUnavailable or
// ErrPermissionDenied, and calls go through a circuit breaker.
type Sync struct {
	store   DocumentStore
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
	ready   atomic.Bool
}

type Option func(*Sync)

func WithTimeout(d time.Duration) Option {
	return func(s *Sync) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sync) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sync) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSync(store DocumentStore, opts ...Option) *Sync {
	s := &Sync{
		store:   store,
		timeout: defaultTimeout,
		logger:  slog.Default().With("component", "remote"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = resilience.NewCircuitBreaker("remote-document", s.logger, func(err error) bool {
		// Access rules, a refused document and a missing document say
		// nothing about availability.
		return Permanent(err) || errors.Is(err, ErrDocumentNotFound)
	})
	return s
}

// Initialize connects to the store. Until it succeeds every other call
// returns ErrUnavailable.
func (s *Sync) Initialize(ctx context.Context) error {
	err := s.call(ctx, func(ctx context.Context) error {
		return s.store.Ping(ctx)
	})
	s.observe("initialize", err)
	if err != nil {
		s.ready.Store(false)
		return err
	}
	s.ready.Store(true)
	s.logger.InfoContext(ctx, "Remote store initialized")
	return nil
}

// Available reports whether Initialize has succeeded.
func (s *Sync) Available() bool {
	return s != nil && s.ready.Load()
}

// Save writes the whole collection as the shared document.
func (s *Sync) Save(ctx context.Context, c core.Collection) error {
	_, err := s.put(ctx, "save", c)
	return err
}

// Load returns the shared document. A missing document is created with an
// empty collection and that empty document is returned.
func (s *Sync) Load(ctx context.Context) (Document, error) {
	if !s.Available() {
		s.observe("load", ErrUnavailable)
		return Document{}, ErrUnavailable
	}
	var doc Document
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.store.Get(ctx)
		return err
	})
	if errors.Is(err, ErrDocumentNotFound) {
		s.logger.InfoContext(ctx, "Remote document missing, seeding empty collection")
		return s.put(ctx, "seed", core.NewCollection())
	}
	s.observe("load", err)
	if err != nil {
		return Document{}, err
	}
	doc.Collection.Normalize()
	return doc, nil
}

// Subscribe registers fn for every change of the shared document,
// including changes written by this process. fn must not block for long.
func (s *Sync) Subscribe(ctx context.Context, fn func(Event)) (Subscription, error) {
	if !s.Available() {
		s.observe("subscribe", ErrUnavailable)
		return nil, ErrUnavailable
	}
	sub, err := s.store.Watch(ctx, func(doc Document, err error) {
		if err != nil {
			fn(Event{Err: classify(err)})
			return
		}
		doc.Collection.Normalize()
		fn(Event{Document: doc})
	})
	if err != nil {
		err = classify(err)
		s.observe("subscribe", err)
		return nil, err
	}
	s.observe("subscribe", nil)
	return sub, nil
}

// AddRecord reads the document, appends r to cat and writes the whole
// document back. Concurrent writers are not detected.
func (s *Sync) AddRecord(ctx context.Context, cat core.Category, r core.Record) (core.Collection, error) {
	return s.modify(ctx, "add", func(c *core.Collection) error {
		return c.Add(cat, r)
	})
}

// RemoveRecord reads the document, drops the record with id from cat and
// writes the whole document back. Fails with core.ErrNotFound when absent.
func (s *Sync) RemoveRecord(ctx context.Context, cat core.Category, id core.RecordID) (core.Collection, error) {
	return s.modify(ctx, "remove", func(c *core.Collection) error {
		_, err := c.Remove(cat, id)
		return err
	})
}

func (s *Sync) modify(ctx context.Context, op string, fn func(*core.Collection) error) (core.Collection, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return core.Collection{}, err
	}
	c := doc.Collection.Clone()
	if err := fn(&c); err != nil {
		return core.Collection{}, err
	}
	if _, err := s.put(ctx, op, c); err != nil {
		return core.Collection{}, err
	}
	return c, nil
}

func (s *Sync) put(ctx context.Context, op string, c core.Collection) (Document, error) {
	if !s.Available() {
		s.observe(op, ErrUnavailable)
		return Document{}, ErrUnavailable
	}
	var doc Document
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.store.Put(ctx, c)
		return err
	})
	s.observe(op, err)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Sync) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := resilience.Do(s.breaker, func() error { return fn(ctx) })
	if errors.Is(err, ErrDocumentNotFound) {
		return err
	}
	return classify(err)
}

func (s *Sync) observe(op string, err error) {
	s.metrics.RemoteOperation(op, Outcome(err))
	if errors.Is(err, ErrPermissionDenied) {
		s.logger.Warn("Remote store rejected operation by access rules", "operation", op, "error", err)
	}
}

// classify maps any failure onto ErrPermissionDenied or ErrUnavailable,
// keeping the cause in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case Permanent(err), errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// Permanent reports whether retrying the same write is pointless.
func Permanent(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrRejected)
}

// Outcome maps an error onto the metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrPermissionDenied):
		return metrics.OutcomePermissionDenied
	case errors.Is(err, ErrRejected):
		return metrics.OutcomeRejected
	case errors.Is(err, ErrUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
