package core

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const defaultCatalogTag = "general"

// CatalogItem is a predefined recurring expense from the static catalog file.
type CatalogItem struct {
	ID          RecordID `json:"id"`
	Description string   `json:"descripcion"`
	Amount      Money    `json:"importe"`
	Tag         string   `json:"categoria"`
	Active      bool     `json:"activo"`
}

// Catalog lists the predefined fixed monthly expenses.
type Catalog struct {
	FixedMonthly []CatalogItem `json:"gastosFijosMensuales"`
}

func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if c.FixedMonthly == nil {
		c.FixedMonthly = []CatalogItem{}
	}
	return c, nil
}

// LoadCatalogFile reads a catalog from disk. A missing file surfaces as an
// error wrapping fs.ErrNotExist.
func LoadCatalogFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ActiveItems returns the items flagged as active.
func (c Catalog) ActiveItems() []CatalogItem {
	out := make([]CatalogItem, 0, len(c.FixedMonthly))
	for _, it := range c.FixedMonthly {
		if it.Active {
			out = append(out, it)
		}
	}
	return out
}

// HasCatalogRecords reports whether any record was derived from the catalog.
func HasCatalogRecords(c Collection) bool {
	for _, cat := range Categories() {
		for _, r := range c.Records(cat) {
			if r.FromCatalog {
				return true
			}
		}
	}
	return false
}

// SeedFromCatalog inserts every active catalog item into the fixed monthly
// list, dated on the first day of now's month. It does nothing when the
// collection already holds catalog records, so calling it repeatedly never
// duplicates them. Returns how many records were added.
func SeedFromCatalog(c *Collection, cat Catalog, now time.Time) int {
	if HasCatalogRecords(*c) {
		return 0
	}
	first := FirstOfMonth(now)
	added := 0
	for _, it := range cat.ActiveItems() {
		tag := strings.TrimSpace(it.Tag)
		if tag == "" {
			tag = defaultCatalogTag
		}
		r := Record{
			ID:          RecordID("json_" + string(it.ID)),
			Date:        first,
			Description: it.Description,
			Amount:      it.Amount,
			Tag:         tag,
			FromCatalog: true,
			CatalogID:   it.ID,
		}
		if err := c.Add(FixedMonthly, r); err == nil {
			added++
		}
	}
	return added
}

// RefreshCatalogDates moves every catalog-derived record to the first day
// of now's month. Returns how many records changed.
func RefreshCatalogDates(c *Collection, now time.Time) int {
	first := FirstOfMonth(now)
	changed := 0
	for _, cat := range Categories() {
		l := *c.list(cat)
		for i := range l {
			if l[i].FromCatalog && !l[i].Date.Equal(first.Time) {
				l[i].Date = first
				changed++
			}
		}
	}
	return changed
}
