package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
		{NewDate(1999, 12, 31), false},
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestRecordValidate(t *testing.T) {
	good := Record{
		ID:          "1",
		Date:        NewDate(2025, 10, 1),
		Description: "Gasolina",
		Amount:      Money{Cents: 4500},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		r    Record
		want error
	}{
		{"zero date", Record{Description: "a", Amount: Money{Cents: 1}}, ErrInvalidDate},
		{"empty description", Record{Date: NewDate(2025, 1, 1), Description: "  ", Amount: Money{Cents: 1}}, ErrEmptyDescription},
		{"placeholder", Record{Date: NewDate(2025, 1, 1), Description: "Seleccionar categoría...", Amount: Money{Cents: 1}}, ErrEmptyDescription},
		{"zero amount", Record{Date: NewDate(2025, 1, 1), Description: "a"}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.r.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	for _, c := range Categories() {
		got, err := ParseCategory(c.Key())
		if err != nil || got != c {
			t.Fatalf("key %q: got %v, %v", c.Key(), got, err)
		}
		got, err = ParseCategory(c.DocumentKey())
		if err != nil || got != c {
			t.Fatalf("document key %q: got %v, %v", c.DocumentKey(), got, err)
		}
		if c.Label() == "" {
			t.Fatalf("category %v has no label", c)
		}
	}
	if _, err := ParseCategory("variablesTrimestrales"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestCollectionNormalizeKeepsEveryCategory(t *testing.T) {
	c := NewCollection()
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	for _, cat := range Categories() {
		if string(raw[cat.DocumentKey()]) != "[]" {
			t.Fatalf("expected %s to be an empty list, got %s", cat.DocumentKey(), raw[cat.DocumentKey()])
		}
	}
}

func TestDecodeCollectionBackfillsAndAcceptsLegacyKeys(t *testing.T) {
	data := []byte(`{
		"fijosMensuales": [{"id": 1700000000000, "fecha": "01-10-25", "descripcion": "Alquiler", "importe": 650}],
		"gastosVacaciones": [{"id": "v1", "fecha": "2025-08-03", "descripcion": "Hotel", "importe": "120,5"}]
	}`)
	c, err := DecodeCollection(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.FixedMonthly) != 1 || c.FixedMonthly[0].ID != "1700000000000" {
		t.Fatalf("legacy list not decoded: %+v", c.FixedMonthly)
	}
	if c.Vacation[0].Amount.Cents != 12050 {
		t.Fatalf("expected 12050 cents, got %d", c.Vacation[0].Amount.Cents)
	}
	if c.Vacation[0].Date.Display() != "03-08-25" {
		t.Fatalf("expected 03-08-25, got %s", c.Vacation[0].Date.Display())
	}
	if c.FixedSemiannual == nil || c.VariableMonthly == nil {
		t.Fatalf("missing categories were not back-filled")
	}
}

func TestCollectionAddUpdateRemove(t *testing.T) {
	c := NewCollection()
	r := Record{ID: "a", Date: NewDate(2025, 10, 1), Description: "Gasolina", Amount: Money{Cents: 4500}}
	if err := c.Add(VariableMonthly, r); err != nil {
		t.Fatal(err)
	}

	updated, err := c.Update(VariableMonthly, "a", Record{Date: NewDate(2025, 10, 2), Description: "Diesel", Amount: Money{Cents: 5000}})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != "a" || updated.Description != "Diesel" || c.VariableMonthly[0].Amount.Cents != 5000 {
		t.Fatalf("unexpected update result %+v", c.VariableMonthly[0])
	}

	before := c.Clone()
	if _, err := c.Remove(VariableMonthly, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !c.Equal(before) {
		t.Fatalf("failed remove changed the collection")
	}

	if _, err := c.Remove(VariableMonthly, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty collection, got %d records", c.Len())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := NewCollection()
	_ = c.Add(FixedMonthly, Record{ID: "x", Description: "Luz", Amount: Money{Cents: 100}})
	cp := c.Clone()
	cp.FixedMonthly[0].Description = "Agua"
	if c.FixedMonthly[0].Description != "Luz" {
		t.Fatalf("clone shares storage with the original")
	}
	if c.Equal(cp) {
		t.Fatalf("expected collections to differ")
	}
}

func TestNewRecordIDIsUniqueAndOrdered(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	a := NewRecordID(now)
	b := NewRecordID(now)
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
	if !(a < b) {
		t.Fatalf("expected monotonic ids, got %s then %s", a, b)
	}
}
