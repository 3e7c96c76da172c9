package redis

import (
	"errors"
	"testing"
	"time"

	"gastos/internal/remote"
)

func TestDocumentKey(t *testing.T) {
	s := NewWithClient(nil, "gastos-compartidos", "datos-principales")
	if s.key != "gastos-compartidos:datos-principales" {
		t.Errorf("key = %q", s.key)
	}
	if s.channel != "gastos-compartidos:datos-principales:changes" {
		t.Errorf("channel = %q", s.channel)
	}
}

func TestDecodeFields(t *testing.T) {
	fields := map[string]string{
		fieldData:      `{"gastosVariablesMensuales":[{"id":"a1","fecha":"01-10-25","descripcion":"Gasolina","importe":45}]}`,
		fieldUpdatedAt: "1759305600000",
		fieldVersion:   "1.0",
	}

	doc, err := decodeFields(fields)
	if err != nil {
		t.Fatalf("decodeFields() error = %v", err)
	}
	if len(doc.Collection.VariableMonthly) != 1 {
		t.Fatalf("variable len = %d, want 1", len(doc.Collection.VariableMonthly))
	}
	if got := doc.Collection.VariableMonthly[0].Amount.Cents; got != 4500 {
		t.Errorf("amount cents = %d, want 4500", got)
	}
	want := time.Date(2025, 10, 1, 8, 0, 0, 0, time.UTC)
	if !doc.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want %v", doc.UpdatedAt, want)
	}
	if doc.Version != "1.0" {
		t.Errorf("Version = %q", doc.Version)
	}
	if doc.Collection.FixedMonthly == nil {
		t.Error("missing lists should decode as empty, not nil")
	}
}

func TestDecodeFields_BadTimestamp(t *testing.T) {
	_, err := decodeFields(map[string]string{fieldData: `{}`, fieldUpdatedAt: "yesterday"})
	if err == nil {
		t.Fatal("expected error for non-numeric timestamp")
	}
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		msg    string
		denied bool
	}{
		{"NOPERM this user has no permissions to run the 'hset' command", true},
		{"NOAUTH Authentication required.", true},
		{"WRONGPASS invalid username-password pair", true},
		{"dial tcp 127.0.0.1:6379: connect: connection refused", false},
		{"ERR unknown command", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := mapErr(errors.New(tt.msg))
			if got := errors.Is(err, remote.ErrPermissionDenied); got != tt.denied {
				t.Errorf("denied = %v, want %v (err %v)", got, tt.denied, err)
			}
		})
	}
	if mapErr(nil) != nil {
		t.Error("mapErr(nil) should be nil")
	}
}
