package core

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleCatalog = `{
  "gastosFijosMensuales": [
    {"id": 1, "descripcion": "Alquiler", "importe": 650, "categoria": "vivienda", "activo": true},
    {"id": 2, "descripcion": "Internet", "importe": 35.9, "activo": true},
    {"id": 3, "descripcion": "Gimnasio", "importe": 30, "categoria": "ocio", "activo": false}
  ]
}`

func TestSeedFromCatalogIsIdempotent(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 10, 17, 9, 30, 0, 0, time.UTC)
	c := NewCollection()

	if n := SeedFromCatalog(&c, cat, now); n != 2 {
		t.Fatalf("expected 2 seeded records, got %d", n)
	}
	if n := SeedFromCatalog(&c, cat, now); n != 0 {
		t.Fatalf("second seed added %d records", n)
	}
	if len(c.FixedMonthly) != 2 {
		t.Fatalf("expected 2 fixed monthly records, got %d", len(c.FixedMonthly))
	}

	first := c.FixedMonthly[0]
	if first.ID != "json_1" || first.CatalogID != "1" || !first.FromCatalog {
		t.Fatalf("unexpected provenance: %+v", first)
	}
	if first.Date.Display() != "01-10-25" {
		t.Fatalf("expected first of month, got %s", first.Date.Display())
	}
	if c.FixedMonthly[1].Tag != "general" {
		t.Fatalf("expected default tag, got %q", c.FixedMonthly[1].Tag)
	}
	if c.FixedMonthly[1].Amount.Cents != 3590 {
		t.Fatalf("expected 3590 cents, got %d", c.FixedMonthly[1].Amount.Cents)
	}
}

func TestRefreshCatalogDates(t *testing.T) {
	cat, _ := ParseCatalog([]byte(sampleCatalog))
	c := NewCollection()
	SeedFromCatalog(&c, cat, time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC))
	_ = c.Add(FixedMonthly, Record{ID: "manual", Date: NewDate(2025, 9, 12), Description: "Luz", Amount: Money{Cents: 4000}})

	nov := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	if n := RefreshCatalogDates(&c, nov); n != 2 {
		t.Fatalf("expected 2 refreshed records, got %d", n)
	}
	if n := RefreshCatalogDates(&c, nov); n != 0 {
		t.Fatalf("expected no changes on second refresh, got %d", n)
	}
	manual, _ := c.Find(FixedMonthly, "manual")
	if manual.Date.Display() != "12-09-25" {
		t.Fatalf("manual record was moved to %s", manual.Date.Display())
	}
}

func TestLoadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadCatalogFile(filepath.Join(dir, "missing.json")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
	path := filepath.Join(dir, "gastos-fijos.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.ActiveItems()) != 2 {
		t.Fatalf("expected 2 active items, got %d", len(cat.ActiveItems()))
	}
}
