package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gastos/internal/core"
)

func TestLoadCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "gastos.json")
	s := New(path)

	c, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty collection, got %d", c.Len())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to be created: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, cat := range core.Categories() {
		if string(raw[cat.DocumentKey()]) != "[]" {
			t.Fatalf("expected empty %s list, got %s", cat.DocumentKey(), raw[cat.DocumentKey()])
		}
	}
	if _, ok := raw["configuracion"]; !ok {
		t.Fatalf("expected configuracion block")
	}
}

func TestSaveRewritesWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gastos.json")
	s := New(path)
	s.now = func() time.Time { return time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	c := core.NewCollection()
	_ = c.Add(core.VariableMonthly, core.Record{ID: "a", Date: core.NewDate(2025, 10, 1), Description: "Gasolina", Amount: core.Money{Cents: 4500}})
	if err := s.Save(ctx, c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, _ := os.ReadFile(path)
	text := string(data)
	if !strings.Contains(text, "\n  \"gastosVariablesMensuales\": [") {
		t.Fatalf("expected 2-space indentation, got:\n%s", text)
	}
	if !strings.Contains(text, `"fecha": "01-10-25"`) || !strings.Contains(text, `"importe": 45.00`) {
		t.Fatalf("unexpected record encoding:\n%s", text)
	}

	doc, err := s.LoadDocument(ctx)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if !doc.Collection.Equal(c) {
		t.Fatalf("round trip mismatch")
	}
	if doc.Settings.Version != "1.0" || doc.Settings.Currency != "EUR" || doc.Settings.UpdatedAt != "2025-10-01T08:00:00Z" {
		t.Fatalf("unexpected settings %+v", doc.Settings)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp files to be cleaned up, found %d entries", len(entries))
	}
}

func TestLoadBackfillsQuarterlyOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gastos.json")
	legacy := `{"gastosFijosMensuales":[{"id":"1","fecha":"01-10-25","descripcion":"Luz","importe":40}],"gastosVariablesTrimestrales":[]}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.FixedMonthly) != 1 || c.Vacation == nil || c.FixedSemiannual == nil {
		t.Fatalf("expected back-filled collection, got %+v", c)
	}
}
