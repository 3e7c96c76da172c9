package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/remote"
)

func TestStore_GetMissing(t *testing.T) {
	s := New()
	if _, err := s.Get(context.Background()); !errors.Is(err, remote.ErrDocumentNotFound) {
		t.Fatalf("Get() error = %v, want ErrDocumentNotFound", err)
	}
}

func TestStore_PutStampsAndCopies(t *testing.T) {
	s := New()
	fixed := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	c := core.NewCollection()
	c.Vacation = append(c.Vacation, core.Record{ID: "v1", Description: "Hotel", Amount: core.Money{Cents: 10000}})

	doc, err := s.Put(context.Background(), c)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !doc.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v, want %v", doc.UpdatedAt, fixed)
	}

	c.Vacation[0].Description = "mutated"
	got, err := s.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.Collection.Vacation[0].Description != "Hotel" {
		t.Error("store must keep its own copy of the collection")
	}
}

func TestStore_WatchDeliversCurrentThenChanges(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, core.NewCollection()); err != nil {
		t.Fatal(err)
	}

	var seen int
	sub, err := s.Watch(ctx, func(doc remote.Document, err error) {
		if err != nil {
			t.Errorf("unexpected feed error: %v", err)
		}
		seen++
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if seen != 1 {
		t.Fatalf("seen after Watch = %d, want 1", seen)
	}

	if _, err := s.Put(ctx, core.NewCollection()); err != nil {
		t.Fatal(err)
	}
	if seen != 2 {
		t.Errorf("seen after Put = %d, want 2", seen)
	}

	sub.Close()
	if _, err := s.Put(ctx, core.NewCollection()); err != nil {
		t.Fatal(err)
	}
	if seen != 2 {
		t.Errorf("closed watcher still notified, seen = %d", seen)
	}
}

func TestStore_FailWith(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	s.FailWith(boom)
	ctx := context.Background()

	if err := s.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping() error = %v, want boom", err)
	}
	if _, err := s.Put(ctx, core.NewCollection()); !errors.Is(err, boom) {
		t.Errorf("Put() error = %v, want boom", err)
	}
	if _, err := s.Watch(ctx, func(remote.Document, error) {}); !errors.Is(err, boom) {
		t.Errorf("Watch() error = %v, want boom", err)
	}

	s.FailWith(nil)
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping() after recovery error = %v", err)
	}
}
