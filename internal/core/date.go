package core

import (
	"fmt"
	"time"
)

// DateFormat is the ISO-8601 calendar date layout used everywhere a date
// crosses a boundary (API, storage, exports).
const DateFormat = "2006-01-02"

// Date is a calendar date with day granularity. It carries no time-of-day or
// timezone information; the canonical representation is "YYYY-MM-DD".
type Date struct {
	t time.Time
}

// NewDate returns a normalized Date for the given year, month, and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date in UTC.
func Today() Date {
	y, m, d := time.Now().UTC().Date()
	return NewDate(y, m, d)
}

// ParseDate parses a strict "YYYY-MM-DD" date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", s, DateFormat, ErrInvalidDate)
	}
	return Date{t: t}, nil
}

// String formats the date in its canonical ISO-8601 form.
func (d Date) String() string {
	return d.t.Format(DateFormat)
}

// MonthKey returns the "YYYY-MM" month bucket for the date.
func (d Date) MonthKey() string {
	return d.t.Format("2006-01")
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// Before reports whether d falls strictly before x.
func (d Date) Before(x Date) bool { return d.t.Before(x.t) }

// After reports whether d falls strictly after x.
func (d Date) After(x Date) bool { return d.t.After(x.t) }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s: %w", s, ErrInvalidDate)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
