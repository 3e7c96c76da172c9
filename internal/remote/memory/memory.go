// Package memory is an in-process remote document store. Changes are
// delivered to watchers synchronously, after the store lock is released.
package memory

import (
	"context"
	"sync"
	"time"

	"gastos/internal/core"
	"gastos/internal/remote"
)

type Store struct {
	mu       sync.Mutex
	doc      *remote.Document
	watchers map[int]func(remote.Document, error)
	nextID   int
	err      error
	now      func() time.Time
}

var _ remote.DocumentStore = (*Store)(nil)

func New() *Store {
	return &Store{
		watchers: make(map[int]func(remote.Document, error)),
		now:      time.Now,
	}
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) Get(_ context.Context) (remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return remote.Document{}, s.err
	}
	if s.doc == nil {
		return remote.Document{}, remote.ErrDocumentNotFound
	}
	return copyDoc(*s.doc), nil
}

func (s *Store) Put(_ context.Context, c core.Collection) (remote.Document, error) {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return remote.Document{}, err
	}
	doc := remote.Document{Collection: c.Clone(), UpdatedAt: s.now().UTC(), Version: remote.SchemaVersion}
	doc.Collection.Normalize()
	s.doc = &doc
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(copyDoc(doc), nil)
	}
	return copyDoc(doc), nil
}

// Watch registers fn and delivers the current document, if any, right away.
func (s *Store) Watch(_ context.Context, fn func(remote.Document, error)) (remote.Subscription, error) {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	var current *remote.Document
	if s.doc != nil {
		d := copyDoc(*s.doc)
		current = &d
	}
	s.mu.Unlock()

	if current != nil {
		fn(*current, nil)
	}
	return remote.SubscriptionFunc(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
		return nil
	}), nil
}

// FailWith makes every later call fail with err. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// BreakFeed reports err to every watcher, as a dropped connection would.
func (s *Store) BreakFeed(err error) {
	s.mu.Lock()
	watchers := s.snapshotWatchers()
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(remote.Document{}, err)
	}
}

// Watchers returns the number of live subscriptions.
func (s *Store) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) snapshotWatchers() []func(remote.Document, error) {
	out := make([]func(remote.Document, error), 0, len(s.watchers))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.watchers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func copyDoc(d remote.Document) remote.Document {
	d.Collection = d.Collection.Clone()
	return d
}
