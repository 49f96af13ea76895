/*
Package calendar provides pure date and entitlement arithmetic.

PURPOSE:
  Everything in this package is a pure function of its inputs. The
  entitlement calculator never reads the clock, never touches storage,
  and never applies policy (weekend auto-disable is a lifecycle-layer
  concern layered on top via WeekendsIn).

KEY CONCEPTS IN THIS FILE (date.go):
  - Date: a calendar day (UTC, day granularity)
  - Range: an inclusive [Start, End] span of days

DESIGN PRINCIPLES:
  1. Day granularity only: meal entitlement is counted in whole days
  2. Determinism: identical inputs always produce identical outputs
  3. No hidden state: callers pass disable sets explicitly

SEE ALSO:
  - entitlement.go: The meal-count calculator
  - mealplan/lifecycle.go: Applies the weekend auto-disable policy
*/
package calendar

import "time"

// =============================================================================
// DATE - A calendar day (UTC, day granularity)
// =============================================================================

type Date struct {
	t time.Time
}

const isoDay = "2006-01-02"

// NewDate constructs a Date from year/month/day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Today returns the current calendar day.
func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses an ISO "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoDay, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.t.Format(isoDay) }

// =============================================================================
// RANGE - Inclusive [Start, End] span of days
// =============================================================================

type Range struct {
	Start Date
	End   Date
}

// IsValid reports whether Start <= End. A reversed range is a caller
// error and yields zero days everywhere, never a negative count.
func (r Range) IsValid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.Start.BeforeOrEqual(r.End)
}

// Contains returns true if the date falls within [Start, End].
func (r Range) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Overlaps tests inclusive overlap with another range:
// r.Start <= other.End AND r.End >= other.Start.
func (r Range) Overlaps(other Range) bool {
	return r.Start.BeforeOrEqual(other.End) && r.End.AfterOrEqual(other.Start)
}

// Days enumerates every day in the range, in order.
// Returns nil for an invalid (reversed or zero) range.
func (r Range) Days() []Date {
	if !r.IsValid() {
		return nil
	}
	var days []Date
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// WeekendsIn returns every Saturday and Sunday in the range.
// Used by the partial_full_time weekend auto-disable policy.
func WeekendsIn(r Range) []Date {
	var weekends []Date
	for _, d := range r.Days() {
		if d.IsWeekend() {
			weekends = append(weekends, d)
		}
	}
	return weekends
}

func (r Range) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
