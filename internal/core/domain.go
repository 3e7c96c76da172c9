package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Category is one of the fixed expense groupings. The set is closed: every
// Collection carries exactly one list per member of Categories().
type Category int

const (
	FixedMonthly Category = iota + 1
	FixedSemiannual
	VariableMonthly
	Vacation
)

type (
	// RecordID is an opaque record identifier. Older clients generated
	// numeric ids, so JSON numbers are accepted and kept as text.
	RecordID string

	Record struct {
		ID          RecordID `json:"id"`
		Date        Date     `json:"fecha"`
		Description string   `json:"descripcion"`
		Amount      Money    `json:"importe"`
		Tag         string   `json:"categoria,omitempty"`
		FromCatalog bool     `json:"esDelJSON,omitempty"`
		CatalogID   RecordID `json:"idJSON,omitempty"`
	}

	// Collection is the whole persisted aggregate: one ordered list per
	// category.
	Collection struct {
		FixedMonthly    []Record `json:"gastosFijosMensuales"`
		FixedSemiannual []Record `json:"gastosFijosSemestrales"`
		VariableMonthly []Record `json:"gastosVariablesMensuales"`
		Vacation        []Record `json:"gastosVacaciones"`
	}
)

var (
	ErrValidation       = errors.New("validation error")
	ErrInvalidDate      = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrValidation)
	ErrInvalidCategory  = fmt.Errorf("%w: invalid category", ErrValidation)
	ErrNotFound         = errors.New("record not found")
)

// Values the UI uses as select prompts; they are never real descriptions.
var placeholderDescriptions = []string{
	"Seleccionar categoría...",
	"Seleccionar o escribir...",
}

const maxDescriptionLength = 200

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{FixedMonthly, FixedSemiannual, VariableMonthly, Vacation}
}

func (c Category) Valid() bool {
	return c >= FixedMonthly && c <= Vacation
}

// Key is the short name used by the UI and the legacy local format.
func (c Category) Key() string {
	switch c {
	case FixedMonthly:
		return "fijosMensuales"
	case FixedSemiannual:
		return "fijosSemestrales"
	case VariableMonthly:
		return "variablesMensuales"
	case Vacation:
		return "vacaciones"
	}
	return ""
}

// DocumentKey is the field name used in persisted and remote documents.
func (c Category) DocumentKey() string {
	switch c {
	case FixedMonthly:
		return "gastosFijosMensuales"
	case FixedSemiannual:
		return "gastosFijosSemestrales"
	case VariableMonthly:
		return "gastosVariablesMensuales"
	case Vacation:
		return "gastosVacaciones"
	}
	return ""
}

// Label is the human readable kind shown in summaries.
func (c Category) Label() string {
	switch c {
	case FixedMonthly:
		return "Fijo"
	case FixedSemiannual:
		return "Semestral"
	case VariableMonthly:
		return "Variable"
	case Vacation:
		return "Vacaciones"
	}
	return ""
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return c.Key()
}

// ParseCategory accepts either the short key or the document key.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if s == c.Key() || s == c.DocumentKey() {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (id *RecordID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("record id must be a string or number: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

func (r Record) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return err
	}
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		return ErrEmptyDescription
	}
	for _, p := range placeholderDescriptions {
		if desc == p {
			return ErrEmptyDescription
		}
	}
	if len(desc) > maxDescriptionLength {
		return fmt.Errorf("%w: description too long (max %d characters)", ErrValidation, maxDescriptionLength)
	}
	return r.Amount.Validate()
}

func (r Record) Equal(o Record) bool {
	return r.ID == o.ID &&
		r.Date.Equal(o.Date.Time) &&
		r.Description == o.Description &&
		r.Amount == o.Amount &&
		r.Tag == o.Tag &&
		r.FromCatalog == o.FromCatalog &&
		r.CatalogID == o.CatalogID
}

// NewCollection returns a collection with every category present and empty.
func NewCollection() Collection {
	var c Collection
	c.Normalize()
	return c
}

// Normalize replaces missing category lists with empty ones.
func (c *Collection) Normalize() {
	for _, cat := range Categories() {
		if l := c.list(cat); *l == nil {
			*l = []Record{}
		}
	}
}

func (c *Collection) list(cat Category) *[]Record {
	switch cat {
	case FixedMonthly:
		return &c.FixedMonthly
	case FixedSemiannual:
		return &c.FixedSemiannual
	case VariableMonthly:
		return &c.VariableMonthly
	case Vacation:
		return &c.Vacation
	}
	panic(fmt.Sprintf("core: unknown category %d", int(cat)))
}

// Records returns the list for a category. The slice is shared with the
// collection.
func (c Collection) Records(cat Category) []Record {
	if !cat.Valid() {
		return nil
	}
	return *c.list(cat)
}

// Len returns the number of records across every category.
func (c Collection) Len() int {
	n := 0
	for _, cat := range Categories() {
		n += len(c.Records(cat))
	}
	return n
}

// Clone returns a deep copy so callers can mutate it freely.
func (c Collection) Clone() Collection {
	var out Collection
	for _, cat := range Categories() {
		src := c.Records(cat)
		dst := make([]Record, len(src))
		copy(dst, src)
		*out.list(cat) = dst
	}
	return out
}

// Equal reports whether two collections hold the same records in the same
// order. Nil and empty lists are considered equal.
func (c Collection) Equal(o Collection) bool {
	for _, cat := range Categories() {
		a, b := c.Records(cat), o.Records(cat)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
	}
	return true
}

func (c *Collection) Find(cat Category, id RecordID) (Record, bool) {
	if !cat.Valid() {
		return Record{}, false
	}
	for _, r := range *c.list(cat) {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// Add appends a record to a category. The record must already carry an id.
func (c *Collection) Add(cat Category, r Record) error {
	if !cat.Valid() {
		return ErrInvalidCategory
	}
	l := c.list(cat)
	*l = append(*l, r)
	return nil
}

// Update replaces date, description and amount of the record with the given
// id, keeping its identity and provenance.
func (c *Collection) Update(cat Category, id RecordID, changes Record) (Record, error) {
	if !cat.Valid() {
		return Record{}, ErrInvalidCategory
	}
	l := *c.list(cat)
	for i := range l {
		if l[i].ID == id {
			l[i].Date = changes.Date
			l[i].Description = changes.Description
			l[i].Amount = changes.Amount
			if changes.Tag != "" {
				l[i].Tag = changes.Tag
			}
			return l[i], nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s in %s", ErrNotFound, id, cat)
}

// Remove deletes the record with the given id. The collection is left
// untouched when the id is absent.
func (c *Collection) Remove(cat Category, id RecordID) (Record, error) {
	if !cat.Valid() {
		return Record{}, ErrInvalidCategory
	}
	l := c.list(cat)
	for i, r := range *l {
		if r.ID == id {
			out := make([]Record, 0, len(*l)-1)
			out = append(out, (*l)[:i]...)
			out = append(out, (*l)[i+1:]...)
			*l = out
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s in %s", ErrNotFound, id, cat)
}

// collectionWire also accepts the category keys written by the old
// browser-local format.
type collectionWire struct {
	Collection
	LegacyFixedMonthly    []Record `json:"fijosMensuales"`
	LegacyFixedSemiannual []Record `json:"fijosSemestrales"`
	LegacyVariableMonthly []Record `json:"variablesMensuales"`
	LegacyVacation        []Record `json:"vacaciones"`
}

// DecodeCollection parses a serialized collection and back-fills any missing
// category with an empty list.
func DecodeCollection(data []byte) (Collection, error) {
	var w collectionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Collection{}, fmt.Errorf("decode collection: %w", err)
	}
	c := w.Collection
	legacy := map[Category][]Record{
		FixedMonthly:    w.LegacyFixedMonthly,
		FixedSemiannual: w.LegacyFixedSemiannual,
		VariableMonthly: w.LegacyVariableMonthly,
		Vacation:        w.LegacyVacation,
	}
	for cat, recs := range legacy {
		if l := c.list(cat); *l == nil && recs != nil {
			*l = recs
		}
	}
	c.Normalize()
	return c, nil
}

// EncodeCollection serializes a normalized copy of the collection.
func EncodeCollection(c Collection) ([]byte, error) {
	c = c.Clone()
	c.Normalize()
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return b, nil
}
