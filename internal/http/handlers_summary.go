package http

import (
	"net/http"

	"gastos/internal/core"
	applog "gastos/internal/log"
)

type categoryTotalDTO struct {
	Key       string     `json:"clave"`
	Label     string     `json:"etiqueta"`
	Total     core.Money `json:"total"`
	Formatted string     `json:"totalFormateado"`
	Count     int        `json:"cantidad"`
}

type breakdownDTO struct {
	Description string     `json:"descripcion"`
	Category    string     `json:"categoria"`
	Tag         string     `json:"etiqueta,omitempty"`
	Total       core.Money `json:"total"`
	Count       int        `json:"cantidad"`
}

type summaryDTO struct {
	Filter     string             `json:"filtro"`
	Month      string             `json:"mes,omitempty"`
	MonthLabel string             `json:"mesEtiqueta,omitempty"`
	Total      core.Money         `json:"total"`
	Formatted  string             `json:"totalFormateado"`
	Count      int                `json:"cantidad"`
	Categories []categoryTotalDTO `json:"categorias"`
	Breakdown  []breakdownDTO     `json:"desglose"`
}

type monthDTO struct {
	Value string `json:"valor"`
	Label string `json:"etiqueta"`
}

func buildSummary(c core.Collection, q summaryQuery) summaryDTO {
	s := core.Summarize(c, q.parsed)
	out := summaryDTO{
		Filter:     q.Filter,
		Total:      s.Total,
		Formatted:  s.Total.String(),
		Count:      s.Count,
		Categories: []categoryTotalDTO{},
		Breakdown:  make([]breakdownDTO, 0, len(s.Breakdown)),
	}
	if out.Filter == "" {
		out.Filter = "todos"
	}
	if !q.parsed.Month.IsZero() {
		out.Month = q.parsed.Month.String()
		out.MonthLabel = q.parsed.Month.Label()
	}

	cats := q.parsed.Categories
	if len(cats) == 0 {
		cats = core.Categories()
	}
	for _, cat := range cats {
		cs := core.Summarize(c, core.SummaryFilter{Categories: []core.Category{cat}, Month: q.parsed.Month})
		out.Categories = append(out.Categories, categoryTotalDTO{
			Key:       cat.Key(),
			Label:     cat.Label(),
			Total:     cs.Total,
			Formatted: cs.Total.String(),
			Count:     cs.Count,
		})
	}
	for _, b := range s.Breakdown {
		out.Breakdown = append(out.Breakdown, breakdownDTO{
			Description: b.Description,
			Category:    b.Category.Key(),
			Tag:         b.Tag,
			Total:       b.Total,
			Count:       b.Count,
		})
	}
	return out
}

// handleSummary serves totals per revision from the cache; any mutation
// bumps the revision and so bypasses older entries.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q, err := parseSummaryQuery(r)
	if err != nil {
		BadRequestError(msgInvalidData).Write(w)
		return
	}

	key := q.cacheKey(s.tracker.Revision())
	if data, found := s.summaryCache.Get(key); found {
		applog.FromContext(r.Context()).Debug("Summary cache hit", "key", key)
		NewJSONResponse().Data(data).Write(w)
		return
	}

	// Read the revision again with the snapshot so the entry is keyed by
	// the state it was computed from.
	rev := s.tracker.Revision()
	data := buildSummary(s.tracker.Snapshot(), q)
	if s.tracker.Revision() == rev {
		s.summaryCache.Set(q.cacheKey(rev), data)
	}
	NewJSONResponse().Data(data).Write(w)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	months := core.AvailableMonths(s.tracker.Snapshot())
	out := make([]monthDTO, 0, len(months))
	for _, ym := range months {
		out = append(out, monthDTO{Value: ym.String(), Label: ym.Label()})
	}
	NewJSONResponse().Data(out).Write(w)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	items := s.catalog.FixedMonthly
	if items == nil {
		items = []core.CatalogItem{}
	}
	NewJSONResponse().Data(items).Write(w)
}
