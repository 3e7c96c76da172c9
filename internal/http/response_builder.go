// Package http serves the JSON API over the tracker.
//
// This file implements the Builder Pattern for the response envelope
// {success, data, error, message} shared by every endpoint.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/services"
)

// User facing messages.
const (
	msgInternal         = "Error interno del servidor"
	msgNotFoundRoute    = "Ruta no encontrada"
	msgMethodNotAllowed = "Método no permitido"
	msgInvalidData      = "Datos inválidos"
	msgInvalidCategory  = "Categoría inválida"
	msgExpenseNotFound  = "Gasto no encontrado"
	msgInvalidDate      = "Fecha inválida"
	msgInvalidAmount    = "Importe inválido"
	msgEmptyDescription = "La descripción es obligatoria"
	msgUnavailable      = "Servicio no disponible"
	msgTooManyRequests  = "Demasiadas solicitudes, inténtelo más tarde"
	msgBodyTooLarge     = "Solicitud demasiado grande"
)

type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	body       envelope
	headers    map[string]string
}

// NewJSONResponse creates a successful response with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		body:       envelope{Success: true},
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Data(data any) *JSONResponseBuilder {
	b.body.Data = data
	return b
}

func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.body.Message = msg
	return b
}

// Timestamp stamps the envelope in RFC 3339 with milliseconds, UTC.
func (b *JSONResponseBuilder) Timestamp(t time.Time) *JSONResponseBuilder {
	b.body.Timestamp = t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse creates a failed envelope with the given status.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	b := NewJSONResponse().Status(statusCode)
	b.body.Success = false
	b.body.Error = message
	return b
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, msgInternal)
}

func MethodNotAllowedError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

// writeServiceError maps tracker and domain errors to responses. Anything
// unclassified is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := applog.FromContext(r.Context())
	switch {
	case errors.Is(err, core.ErrNotFound):
		logger.Debug("Record not found", applog.FieldError, err)
		NotFoundError(msgExpenseNotFound).Write(w)
	case errors.Is(err, core.ErrInvalidCategory):
		BadRequestError(msgInvalidCategory).Write(w)
	case errors.Is(err, core.ErrValidation):
		logger.Debug("Validation failed", applog.FieldError, err)
		UnprocessableEntityError(validationMessage(err)).Write(w)
	case errors.Is(err, services.ErrTrackerClosed):
		ErrorResponse(http.StatusServiceUnavailable, msgUnavailable).Write(w)
	default:
		logger.Error("Request failed", applog.FieldError, err)
		InternalServerError().Write(w)
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidDate):
		return msgInvalidDate
	case errors.Is(err, core.ErrInvalidAmount):
		return msgInvalidAmount
	case errors.Is(err, core.ErrEmptyDescription):
		return msgEmptyDescription
	default:
		return msgInvalidData
	}
}
