package http

import (
	"net/http"

	"gastos/internal/core"
	"gastos/internal/filestore"
	applog "gastos/internal/log"
)

// collectionPayload is the collection together with the settings block the
// UI has always received.
func (s *Server) collectionPayload(c core.Collection) filestore.Document {
	updated := s.tracker.UpdatedAt()
	if updated.IsZero() {
		updated = s.now()
	}
	return filestore.Document{
		Collection: c,
		Settings: filestore.Settings{
			Version:   filestore.SchemaVersion,
			UpdatedAt: updated.Format(core.ISOLayout),
			Currency:  filestore.Currency,
		},
	}
}

func (s *Server) handleGetExpenses(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(s.collectionPayload(s.tracker.Snapshot())).Write(w)
}

func (s *Server) handleSaveExpenses(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCollection(w, r)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	if _, err := s.tracker.ReplaceAll(r.Context(), c); err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().
		Message("Gastos guardados correctamente").
		Timestamp(s.now()).
		Write(w)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		BadRequestError("Categoría y gasto son requeridos").Write(w)
		return
	}
	cat, err := core.ParseCategory(req.Category)
	if err != nil {
		BadRequestError(msgInvalidCategory).Write(w)
		return
	}

	rec := *req.Expense
	rec.Description = sanitizeInput(rec.Description)
	rec.Tag = sanitizeInput(rec.Tag)
	added, c, err := s.tracker.Add(r.Context(), cat, rec)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).Debug("Expense added",
		applog.FieldCategory, cat.Key(),
		applog.FieldRecordID, added.ID)
	NewJSONResponse().
		Message("Gasto agregado correctamente").
		Data(s.collectionPayload(c)).
		Write(w)
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	var req editExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		BadRequestError("Categoría, ID del gasto y gasto son requeridos").Write(w)
		return
	}
	cat, err := core.ParseCategory(req.Category)
	if err != nil {
		BadRequestError(msgInvalidCategory).Write(w)
		return
	}

	changes := *req.Expense
	changes.Description = sanitizeInput(changes.Description)
	changes.Tag = sanitizeInput(changes.Tag)
	_, c, err := s.tracker.Edit(r.Context(), cat, req.ID, changes)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().
		Message("Gasto actualizado correctamente").
		Data(s.collectionPayload(c)).
		Write(w)
}

func (s *Server) handleRemoveExpense(w http.ResponseWriter, r *http.Request) {
	var req removeExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		BadRequestError("Categoría y ID del gasto son requeridos").Write(w)
		return
	}
	cat, err := core.ParseCategory(req.Category)
	if err != nil {
		BadRequestError(msgInvalidCategory).Write(w)
		return
	}

	_, c, err := s.tracker.Remove(r.Context(), cat, req.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	NewJSONResponse().
		Message("Gasto eliminado correctamente").
		Data(s.collectionPayload(c)).
		Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			applog.FromContext(r.Context()).Warn("Readiness check failed", applog.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError(msgNotFoundRoute).Write(w)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	MethodNotAllowedError().Write(w)
}
