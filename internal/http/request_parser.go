// Package http serves the JSON API over the tracker.
//
// This file decodes and validates request bodies and query strings.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gastos/internal/core"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var (
	errMalformedBody = errors.New("malformed request body")
	errBodyTooLarge  = errors.New("request body too large")
)

var validate = validator.New()

// addExpenseRequest is the body of POST /api/agregar-gasto.
type addExpenseRequest struct {
	Category string       `json:"categoria" validate:"required"`
	Expense  *core.Record `json:"gasto" validate:"required"`
}

// editExpenseRequest is the body of PUT /api/editar-gasto.
type editExpenseRequest struct {
	Category string        `json:"categoria" validate:"required"`
	ID       core.RecordID `json:"gastoId" validate:"required"`
	Expense  *core.Record  `json:"gasto" validate:"required"`
}

// removeExpenseRequest is the body of DELETE /api/eliminar-gasto.
type removeExpenseRequest struct {
	Category string        `json:"categoria" validate:"required"`
	ID       core.RecordID `json:"gastoId" validate:"required"`
}

// readBody reads at most maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return data, nil
}

// decodeJSON fills dst from the body. Domain validation failures raised by
// field decoders (dates, amounts) keep their core.ErrValidation identity;
// every other decode failure is errMalformedBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty body", errMalformedBody)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

// decodeCollection parses a whole collection. The body must be a JSON
// object; missing categories become empty lists.
func decodeCollection(w http.ResponseWriter, r *http.Request) (core.Collection, error) {
	data, err := readBody(w, r)
	if err != nil {
		return core.Collection{}, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return core.Collection{}, fmt.Errorf("%w: expected a JSON object", errMalformedBody)
	}
	c, err := core.DecodeCollection(data)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			return core.Collection{}, err
		}
		return core.Collection{}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return c, nil
}

// writeDecodeError answers a body that could not be decoded.
func writeDecodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, msgBodyTooLarge).Write(w)
	case errors.Is(err, core.ErrValidation):
		UnprocessableEntityError(validationMessage(err)).Write(w)
	default:
		BadRequestError(msgInvalidData).Write(w)
	}
}

// summaryQuery holds the parsed /api/resumen query.
type summaryQuery struct {
	Filter string
	Month  string
	parsed core.SummaryFilter
}

func parseSummaryQuery(r *http.Request) (summaryQuery, error) {
	q := summaryQuery{
		Filter: strings.TrimSpace(r.URL.Query().Get("filtro")),
		Month:  strings.TrimSpace(r.URL.Query().Get("mes")),
	}
	f, err := core.ParseSummaryFilter(q.Filter, q.Month)
	if err != nil {
		return summaryQuery{}, err
	}
	q.parsed = f
	return q, nil
}

func (q summaryQuery) cacheKey(revision int64) string {
	return fmt.Sprintf("%d|%s|%s", revision, q.Filter, q.Month)
}
