package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gastos/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gastos.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sample() core.Collection {
	c := core.NewCollection()
	_ = c.Add(core.FixedMonthly, core.Record{ID: "json_1", Date: core.NewDate(2025, 10, 1), Description: "Alquiler", Amount: core.Money{Cents: 65000}, Tag: "vivienda", FromCatalog: true, CatalogID: "1"})
	_ = c.Add(core.VariableMonthly, core.Record{ID: "a", Date: core.NewDate(2025, 10, 1), Description: "Gasolina", Amount: core.Money{Cents: 4500}})
	return c
}

func TestSQLiteStoreLoadEmpty(t *testing.T) {
	s := newTestStore(t)
	c, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty collection, got %d records", c.Len())
	}
	for _, cat := range core.Categories() {
		if c.Records(cat) == nil {
			t.Fatalf("category %s not back-filled", cat)
		}
	}
}

func TestSQLiteStoreSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := sample()

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}

	// A second save replaces the whole snapshot.
	if err := s.Save(ctx, core.NewCollection()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ = s.Load(ctx)
	if got.Len() != 0 {
		t.Fatalf("expected snapshot to be replaced, got %d records", got.Len())
	}
}

func TestSQLiteStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gastos.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), sample()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Load(context.Background())
	if err != nil || got.Len() != 2 {
		t.Fatalf("expected 2 records after reopen, got %d (err=%v)", got.Len(), err)
	}

	v, dirty, err := SchemaVersion(path)
	if err != nil || v != 1 || dirty {
		t.Fatalf("expected clean schema version 1, got %d dirty=%v err=%v", v, dirty, err)
	}
}

func TestReplayStateLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.now = func() time.Time { return time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC) }

	st, err := s.ReplayStatus(ctx)
	if err != nil || st.Status != ReplayClean {
		t.Fatalf("expected clean state, got %+v (err=%v)", st, err)
	}

	if err := s.MarkReplayPending(ctx, "remote unavailable"); err != nil {
		t.Fatal(err)
	}
	st, _ = s.ReplayStatus(ctx)
	if !st.Pending() || st.LastError != "remote unavailable" {
		t.Fatalf("expected pending state, got %+v", st)
	}

	st, err = s.MarkReplayAttemptFailed(ctx, "timeout", 2)
	if err != nil || st.Status != ReplayPending || st.Attempts != 1 {
		t.Fatalf("expected pending with 1 attempt, got %+v (err=%v)", st, err)
	}

	// Marking pending again keeps the attempt count.
	_ = s.MarkReplayPending(ctx, "again")
	st, _ = s.ReplayStatus(ctx)
	if st.Attempts != 1 {
		t.Fatalf("expected attempts to be kept, got %d", st.Attempts)
	}

	st, _ = s.MarkReplayAttemptFailed(ctx, "timeout", 2)
	if st.Status != ReplayFailed || st.Attempts != 2 {
		t.Fatalf("expected failed after max retries, got %+v", st)
	}

	changed, err := s.RetryFailedReplay(ctx)
	if err != nil || !changed {
		t.Fatalf("expected retry to reset failed state (changed=%v err=%v)", changed, err)
	}
	st, _ = s.ReplayStatus(ctx)
	if !st.Pending() || st.Attempts != 0 {
		t.Fatalf("expected pending with no attempts, got %+v", st)
	}

	if err := s.MarkReplayDone(ctx); err != nil {
		t.Fatal(err)
	}
	st, _ = s.ReplayStatus(ctx)
	if st.Status != ReplayClean || st.LastError != "" {
		t.Fatalf("expected clean state, got %+v", st)
	}
	if changed, _ := s.RetryFailedReplay(ctx); changed {
		t.Fatalf("retry should not touch a clean state")
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	c, err := m.Load(ctx)
	if err != nil || c.Len() != 0 {
		t.Fatalf("expected empty collection, got %d (err=%v)", c.Len(), err)
	}
	if err := m.Save(ctx, sample()); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Load(ctx)
	if !got.Equal(sample()) {
		t.Fatalf("memory round trip mismatch")
	}
}
