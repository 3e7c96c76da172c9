package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dates travel in two shapes: the display form dd-mm-yy that is stored, and
// the ISO form yyyy-mm-dd used by form inputs and transport. A two digit
// year yy always means 20yy, so only years 2000..2099 survive a round trip.
const (
	DisplayLayout = "02-01-06"
	ISOLayout     = "2006-01-02"

	minYear = 2000
	maxYear = 2099
)

type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// FirstOfMonth returns the first day of t's month.
func FirstOfMonth(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), 1)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidDate)
	}
	if y := d.Year(); y < minYear || y > maxYear {
		return fmt.Errorf("%w: year %d outside %d-%d", ErrInvalidDate, y, minYear, maxYear)
	}
	return nil
}

// Display renders the date as dd-mm-yy.
func (d Date) Display() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DisplayLayout)
}

// ISO renders the date as yyyy-mm-dd.
func (d Date) ISO() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(ISOLayout)
}

// YearMonth returns the calendar month the date falls in.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

// ParseDate accepts either dd-mm-yy or yyyy-mm-dd.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	switch {
	case isDisplayShape(s):
		return parseParts(2000+atoi(s[6:8]), atoi(s[3:5]), atoi(s[0:2]), s)
	case isISOShape(s):
		return parseParts(atoi(s[0:4]), atoi(s[5:7]), atoi(s[8:10]), s)
	}
	return Date{}, fmt.Errorf("%w: %q is neither dd-mm-yy nor yyyy-mm-dd", ErrInvalidDate, s)
}

// ToDisplayFormat converts yyyy-mm-dd to dd-mm-yy. Input already in display
// form is returned unchanged.
func ToDisplayFormat(s string) (string, error) {
	if isDisplayShape(strings.TrimSpace(s)) {
		if _, err := ParseDate(s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return d.Display(), nil
}

// ToInputFormat converts dd-mm-yy to yyyy-mm-dd. Input already in ISO form is
// returned unchanged.
func ToInputFormat(s string) (string, error) {
	d, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return d.ISO(), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Display())
}

// UnmarshalJSON accepts both date shapes. An empty string or null leaves a
// zero date, which Validate rejects.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: date must be a string", ErrInvalidDate)
	}
	if strings.TrimSpace(s) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func parseParts(year, month, day int, raw string) (Date, error) {
	if year < minYear || year > maxYear {
		return Date{}, fmt.Errorf("%w: year %d outside %d-%d", ErrInvalidDate, year, minYear, maxYear)
	}
	d := NewDate(year, month, day)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return Date{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidDate, raw)
	}
	return d, nil
}

func isDisplayShape(s string) bool {
	return len(s) == 8 && s[2] == '-' && s[5] == '-' &&
		digits(s[0:2]) && digits(s[3:5]) && digits(s[6:8])
}

func isISOShape(s string) bool {
	return len(s) == 10 && s[4] == '-' && s[7] == '-' &&
		digits(s[0:4]) && digits(s[5:7]) && digits(s[8:10])
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
