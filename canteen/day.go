package canteen

import (
	"time"
)

// =============================================================================
// DAY - Calendar day (time-of-day is irrelevant for cancellations)
// =============================================================================

// Day is a calendar day. Cancellations are keyed by day; the hour a guardian
// pressed the button never matters, only whether it was before the cutoff.
type Day struct {
	Year  int
	Month time.Month
	DayOf int
}

const dayFormat = "2006-01-02"

func NewDay(year int, month time.Month, day int) Day {
	return Day{Year: year, Month: month, DayOf: day}
}

// DayOfTime truncates a time to its calendar day in the time's location.
func DayOfTime(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, DayOf: d}
}

// ParseDay parses "YYYY-MM-DD".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return Day{}, err
	}
	return DayOfTime(t), nil
}

// At returns the instant of a given wall-clock time on this day in loc.
// Used to compute the cutoff deadline.
func (d Day) At(hour, minute int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.DayOf, hour, minute, 0, 0, loc)
}

func (d Day) time() time.Time {
	return time.Date(d.Year, d.Month, d.DayOf, 0, 0, 0, 0, time.UTC)
}

// Comparison
func (d Day) Before(other Day) bool { return d.time().Before(other.time()) }
func (d Day) After(other Day) bool  { return d.time().After(other.time()) }
func (d Day) Equal(other Day) bool  { return d == other }
func (d Day) IsZero() bool          { return d == Day{} }

func (d Day) AddDays(n int) Day { return DayOfTime(d.time().AddDate(0, 0, n)) }

func (d Day) String() string { return d.time().Format(dayFormat) }
