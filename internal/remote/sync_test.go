package remote_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/remote"
	"gastos/internal/remote/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newReadySync(t *testing.T, store *memory.Store) *remote.Sync {
	t.Helper()
	s := remote.NewSync(store, remote.WithLogger(quietLogger()), remote.WithTimeout(time.Second))
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return s
}

func sampleRecord(id string) core.Record {
	return core.Record{
		ID:          core.RecordID(id),
		Date:        core.NewDate(2025, 10, 1),
		Description: "Gasolina",
		Amount:      core.Money{Cents: 4500},
	}
}

func TestSync_NotInitialized(t *testing.T) {
	s := remote.NewSync(memory.New(), remote.WithLogger(quietLogger()))
	ctx := context.Background()

	if s.Available() {
		t.Fatal("Available() = true before Initialize")
	}
	if err := s.Save(ctx, core.NewCollection()); !errors.Is(err, remote.ErrUnavailable) {
		t.Errorf("Save() error = %v, want ErrUnavailable", err)
	}
	if _, err := s.Load(ctx); !errors.Is(err, remote.ErrUnavailable) {
		t.Errorf("Load() error = %v, want ErrUnavailable", err)
	}
	if _, err := s.Subscribe(ctx, func(remote.Event) {}); !errors.Is(err, remote.ErrUnavailable) {
		t.Errorf("Subscribe() error = %v, want ErrUnavailable", err)
	}
}

func TestSync_InitializeFailure(t *testing.T) {
	store := memory.New()
	store.FailWith(errors.New("dial tcp: connection refused"))
	s := remote.NewSync(store, remote.WithLogger(quietLogger()))

	err := s.Initialize(context.Background())
	if !errors.Is(err, remote.ErrUnavailable) {
		t.Fatalf("Initialize() error = %v, want ErrUnavailable", err)
	}
	if s.Available() {
		t.Error("Available() = true after failed Initialize")
	}
}

func TestSync_LoadSeedsMissingDocument(t *testing.T) {
	store := memory.New()
	s := newReadySync(t, store)

	doc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Collection.Len() != 0 {
		t.Errorf("Load() collection len = %d, want 0", doc.Collection.Len())
	}
	if doc.Collection.FixedMonthly == nil || doc.Collection.Vacation == nil {
		t.Error("seeded collection should carry all four lists")
	}

	stored, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("store.Get() error = %v, want seeded document", err)
	}
	if stored.Version != remote.SchemaVersion {
		t.Errorf("stored version = %q, want %q", stored.Version, remote.SchemaVersion)
	}
}

func TestSync_SaveThenLoad(t *testing.T) {
	s := newReadySync(t, memory.New())
	ctx := context.Background()

	c := core.NewCollection()
	if err := c.Add(core.VariableMonthly, sampleRecord("a1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	doc, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !doc.Collection.Equal(c) {
		t.Errorf("Load() = %+v, want %+v", doc.Collection, c)
	}
	if doc.UpdatedAt.IsZero() {
		t.Error("Load() should carry the store timestamp")
	}
}

func TestSync_AddAndRemoveRecord(t *testing.T) {
	s := newReadySync(t, memory.New())
	ctx := context.Background()

	c, err := s.AddRecord(ctx, core.Vacation, sampleRecord("v1"))
	if err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}
	if got := len(c.Vacation); got != 1 {
		t.Fatalf("vacation len = %d, want 1", got)
	}

	if _, err := s.RemoveRecord(ctx, core.Vacation, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RemoveRecord(missing) error = %v, want ErrNotFound", err)
	}

	c, err = s.RemoveRecord(ctx, core.Vacation, "v1")
	if err != nil {
		t.Fatalf("RemoveRecord() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("collection len = %d, want 0", c.Len())
	}
}

func TestSync_PermissionDeniedIsNotUnavailable(t *testing.T) {
	store := memory.New()
	s := newReadySync(t, store)
	store.FailWith(remote.ErrPermissionDenied)

	err := s.Save(context.Background(), core.NewCollection())
	if !errors.Is(err, remote.ErrPermissionDenied) {
		t.Fatalf("Save() error = %v, want ErrPermissionDenied", err)
	}
	if errors.Is(err, remote.ErrUnavailable) {
		t.Error("permission failures must not be reported as unavailable")
	}
}

func TestSync_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	store := memory.New()
	s := newReadySync(t, store)
	store.FailWith(errors.New("i/o timeout"))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Save(ctx, core.NewCollection()); !errors.Is(err, remote.ErrUnavailable) {
			t.Fatalf("Save() #%d error = %v, want ErrUnavailable", i, err)
		}
	}

	store.FailWith(nil)
	if err := s.Save(ctx, core.NewCollection()); !errors.Is(err, remote.ErrUnavailable) {
		t.Errorf("Save() with open breaker error = %v, want ErrUnavailable", err)
	}
}

func TestSync_RejectedDocumentDoesNotTripBreaker(t *testing.T) {
	store := memory.New()
	s := newReadySync(t, store)
	rejected := fmt.Errorf("%w: 60000 characters", remote.ErrRejected)
	store.FailWith(rejected)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		err := s.Save(ctx, core.NewCollection())
		if !errors.Is(err, remote.ErrRejected) || errors.Is(err, remote.ErrUnavailable) {
			t.Fatalf("Save() #%d error = %v, want ErrRejected only", i, err)
		}
		if !remote.Permanent(err) {
			t.Fatalf("Permanent(%v) = false", err)
		}
	}

	store.FailWith(nil)
	if err := s.Save(ctx, core.NewCollection()); err != nil {
		t.Errorf("Save() after rejections error = %v, breaker should stay closed", err)
	}
}

func TestSync_SubscribeDeliversChanges(t *testing.T) {
	store := memory.New()
	s := newReadySync(t, store)
	ctx := context.Background()

	var mu sync.Mutex
	var events []remote.Event
	sub, err := s.Subscribe(ctx, func(e remote.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, err := s.AddRecord(ctx, core.FixedMonthly, sampleRecord("f1")); err != nil {
		t.Fatal(err)
	}
	store.BreakFeed(errors.New("stream reset"))

	mu.Lock()
	got := append([]remote.Event(nil), events...)
	mu.Unlock()

	// seed write, add write, then the broken feed
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if !got[1].OK() || len(got[1].Document.Collection.FixedMonthly) != 1 {
		t.Errorf("second event = %+v, want document with one fixed record", got[1])
	}
	if got[2].OK() || !errors.Is(got[2].Err, remote.ErrUnavailable) {
		t.Errorf("third event error = %v, want ErrUnavailable", got[2].Err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := store.Watchers(); n != 0 {
		t.Errorf("watchers after Close = %d, want 0", n)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"denied", remote.ErrPermissionDenied, "permission_denied"},
		{"unavailable", remote.ErrUnavailable, "unavailable"},
		{"rejected", remote.ErrRejected, "rejected"},
		{"other", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := remote.Outcome(tt.err); got != tt.want {
				t.Errorf("Outcome() = %q, want %q", got, tt.want)
			}
		})
	}
}
