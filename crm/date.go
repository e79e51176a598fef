package crm

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granularity calendar date (UTC-normalized)
// =============================================================================

// Date is a calendar date with day granularity. Contract spans, estimate
// dates, and the at-risk window all operate on whole days; time-of-day and
// zone information are deliberately discarded on construction.
type Date struct {
	t time.Time
}

// NewDate constructs a Date from year/month/day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a date in "2006-01-02" form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) String() string { return d.t.Format("2006-01-02") }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the whole-day distance from one date to another,
// midnight to midnight. Negative when `to` precedes `from`.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// =============================================================================
// CONTRACT DURATION - Month counting and year bucketing
// =============================================================================

// DurationMonths returns the whole-month span between two dates:
// (end.year - start.year)*12 + (end.month - start.month), plus one extra
// month when the end falls later in its month than the start does in its
// (a partial final month rounds up).
//
// Inverted inputs (end before start) are NOT validated here; callers must
// guard on a non-positive result.
func DurationMonths(start, end Date) int {
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() > start.Day() {
		months++
	}
	return months
}

// ContractYears maps a month count to the number of annual buckets a
// contract's value is amortized over.
//
// The rule is asymmetric on purpose: exact thresholds for the first three
// years, ceiling division beyond. 12 months is one year, 13 is two; 36 is
// three, 37 is four. This is business policy carried over from the billing
// side; every downstream dollar figure depends on it.
func ContractYears(months int) int {
	switch {
	case months <= 12:
		return 1
	case months <= 24:
		return 2
	case months <= 36:
		return 3
	}
	if months%12 == 0 {
		return months / 12
	}
	return months/12 + 1
}
