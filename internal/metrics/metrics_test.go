package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/api/gastos", 200, time.Millisecond)
	m.LocalSave(nil)
	m.RemoteOperation("save", OutcomeOK)
	m.RemoteEvent(OutcomeIgnored)
	m.ReplayPending(true)
	m.CacheLookup("summary", true)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RemoteOperation("save", OutcomeUnavailable)
	m.ObserveHTTP("GET", "/api/gastos", 200, 10*time.Millisecond)
	m.ReplayPending(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`gastos_remote_operations_total{operation="save",outcome="unavailable"} 1`,
		`gastos_http_requests_total{method="GET",route="/api/gastos",status="200"} 1`,
		`gastos_remote_replay_pending 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in exposition output", want)
		}
	}
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	// Two instances must not collide on registration.
	_ = New()
	_ = New()
}
