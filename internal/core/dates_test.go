package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestToDisplayFormat(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-10-01", "01-10-25", true},
		{"01-10-25", "01-10-25", true},
		{"2000-01-31", "31-01-00", true},
		{"2099-12-31", "31-12-99", true},
		{"1999-12-31", "", false},
		{"2025-02-30", "", false},
		{"30-02-25", "", false},
		{"2025/10/01", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ToDisplayFormat(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: expected %q, got %q (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q: expected ErrInvalidDate, got %v", tc.in, err)
		}
	}
}

func TestToInputFormatUsesTwentyFirstCentury(t *testing.T) {
	cases := map[string]string{
		"01-10-25":   "2025-10-01",
		"15-06-99":   "2099-06-15",
		"01-01-00":   "2000-01-01",
		"2025-10-01": "2025-10-01",
	}
	for in, want := range cases {
		got, err := ToInputFormat(in)
		if err != nil || got != want {
			t.Fatalf("%q: expected %q, got %q (err=%v)", in, want, got, err)
		}
	}
}

func TestDateRoundTrip(t *testing.T) {
	d := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)
	for ; !d.After(end); d = d.AddDate(0, 0, 7) {
		iso := d.Format(ISOLayout)
		display, err := ToDisplayFormat(iso)
		if err != nil {
			t.Fatalf("%s: %v", iso, err)
		}
		back, err := ToInputFormat(display)
		if err != nil || back != iso {
			t.Fatalf("%s -> %s -> %s (err=%v)", iso, display, back, err)
		}
		again, err := ToDisplayFormat(back)
		if err != nil || again != display {
			t.Fatalf("display round trip failed for %s", display)
		}
	}
}

func TestDateJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2025-10-01"`), &d); err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(d)
	if err != nil || string(b) != `"01-10-25"` {
		t.Fatalf("expected \"01-10-25\", got %s (err=%v)", b, err)
	}

	var empty Date
	if err := json.Unmarshal([]byte(`""`), &empty); err != nil || !empty.IsZero() {
		t.Fatalf("expected zero date for empty string, got %v (err=%v)", empty, err)
	}
	if err := json.Unmarshal([]byte(`"not a date"`), &empty); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}
