package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/services"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return body
}

func TestJSONResponseBuilder_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().
		Message("Gastos guardados correctamente").
		Timestamp(time.Date(2025, 10, 1, 8, 30, 0, 0, time.UTC)).
		Header("X-Test", "1").
		Write(rec)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Test") != "1" {
		t.Error("custom header missing")
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["timestamp"] != "2025-10-01T08:30:00.000Z" {
		t.Errorf("timestamp = %v", body["timestamp"])
	}
	if _, ok := body["error"]; ok {
		t.Error("error must be omitted on success")
	}
}

func TestErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFoundError(msgExpenseNotFound).Write(rec)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["success"] != false || body["error"] != msgExpenseNotFound {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["data"]; ok {
		t.Error("data must be omitted on error")
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("%w: x", core.ErrNotFound), http.StatusNotFound, msgExpenseNotFound},
		{"invalid category", core.ErrInvalidCategory, http.StatusBadRequest, msgInvalidCategory},
		{"invalid date", core.ErrInvalidDate, http.StatusUnprocessableEntity, msgInvalidDate},
		{"invalid amount", fmt.Errorf("%w: -1", core.ErrInvalidAmount), http.StatusUnprocessableEntity, msgInvalidAmount},
		{"empty description", core.ErrEmptyDescription, http.StatusUnprocessableEntity, msgEmptyDescription},
		{"generic validation", fmt.Errorf("%w: too long", core.ErrValidation), http.StatusUnprocessableEntity, msgInvalidData},
		{"closed", services.ErrTrackerClosed, http.StatusServiceUnavailable, msgUnavailable},
		{"local failure", errors.New("disk full"), http.StatusInternalServerError, msgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodPost, "/", nil), tt.err)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if body := decodeEnvelope(t, rec); body["error"] != tt.message {
				t.Errorf("error = %v, want %q", body["error"], tt.message)
			}
		})
	}
}
