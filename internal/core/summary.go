package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// YearMonth identifies a calendar month. The zero value means "any month".
type YearMonth struct {
	Year  int
	Month time.Month
}

// DescriptionTotal aggregates the records sharing a description within one
// category.
type DescriptionTotal struct {
	Description string
	Category    Category
	Tag         string
	Total       Money
	Count       int
}

type Summary struct {
	Total     Money
	Count     int
	Breakdown []DescriptionTotal
}

// SummaryFilter restricts which records a summary covers. Empty Categories
// means every category.
type SummaryFilter struct {
	Categories []Category
	Month      YearMonth
}

var monthNames = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// MonthName returns the Spanish name of m.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

// String renders YYYY-MM.
func (ym YearMonth) String() string {
	if ym.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Label renders e.g. "Octubre 2025".
func (ym YearMonth) Label() string {
	if ym.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %d", MonthName(ym.Month), ym.Year)
}

func (ym YearMonth) before(o YearMonth) bool {
	if ym.Year != o.Year {
		return ym.Year < o.Year
	}
	return ym.Month < o.Month
}

// ParseYearMonth parses YYYY-MM. Empty input and "todos" yield the zero value.
func ParseYearMonth(s string) (YearMonth, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "todos" {
		return YearMonth{}, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: month %q must be YYYY-MM", ErrValidation, s)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

// ParseSummaryFilter maps the UI filter names onto categories and parses the
// optional month.
func ParseSummaryFilter(kind, month string) (SummaryFilter, error) {
	var f SummaryFilter
	switch strings.TrimSpace(kind) {
	case "", "todos":
	case "fijos":
		f.Categories = []Category{FixedMonthly}
	case "semestrales":
		f.Categories = []Category{FixedSemiannual}
	case "variables":
		f.Categories = []Category{VariableMonthly}
	case "vacaciones":
		f.Categories = []Category{Vacation}
	default:
		return SummaryFilter{}, fmt.Errorf("%w: unknown filter %q", ErrValidation, kind)
	}
	ym, err := ParseYearMonth(month)
	if err != nil {
		return SummaryFilter{}, err
	}
	f.Month = ym
	return f, nil
}

func (f SummaryFilter) categories() []Category {
	if len(f.Categories) == 0 {
		return Categories()
	}
	return f.Categories
}

func (f SummaryFilter) matches(r Record) bool {
	return f.Month.IsZero() || r.Date.YearMonth() == f.Month
}

// Summarize totals the records selected by f and breaks them down by
// description, largest total first.
func Summarize(c Collection, f SummaryFilter) Summary {
	type key struct {
		cat  Category
		desc string
	}
	var s Summary
	index := map[key]int{}
	for _, cat := range f.categories() {
		for _, r := range c.Records(cat) {
			if !f.matches(r) {
				continue
			}
			s.Total = s.Total.Add(r.Amount)
			s.Count++
			k := key{cat: cat, desc: r.Description}
			i, ok := index[k]
			if !ok {
				i = len(s.Breakdown)
				index[k] = i
				s.Breakdown = append(s.Breakdown, DescriptionTotal{
					Description: r.Description,
					Category:    cat,
					Tag:         r.Tag,
				})
			}
			s.Breakdown[i].Total = s.Breakdown[i].Total.Add(r.Amount)
			s.Breakdown[i].Count++
		}
	}
	sort.SliceStable(s.Breakdown, func(i, j int) bool {
		a, b := s.Breakdown[i], s.Breakdown[j]
		if a.Total.Cents != b.Total.Cents {
			return a.Total.Cents > b.Total.Cents
		}
		return a.Description < b.Description
	})
	return s
}

// CategoryTotal sums every record of one category.
func CategoryTotal(c Collection, cat Category) Money {
	var total Money
	for _, r := range c.Records(cat) {
		total = total.Add(r.Amount)
	}
	return total
}

// AvailableMonths lists the months that hold at least one record, newest
// first.
func AvailableMonths(c Collection) []YearMonth {
	seen := map[YearMonth]bool{}
	var out []YearMonth
	for _, cat := range Categories() {
		for _, r := range c.Records(cat) {
			if r.Date.IsZero() {
				continue
			}
			ym := r.Date.YearMonth()
			if !seen[ym] {
				seen[ym] = true
				out = append(out, ym)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].before(out[i]) })
	return out
}
