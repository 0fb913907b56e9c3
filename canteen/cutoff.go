/*
cutoff.go - The daily cancellation cutoff

PURPOSE:
  Kitchen ordering is locked at a fixed local hour each day. Cancellations
  after that hour cannot reduce what was already prepared or purchased, so
  BOTH creating a cancellation and reversing one must respect the same
  boundary, evaluated against the meal's own date.

THE RULE:
  An operation on a meal dated D is allowed iff

      now < D at HH:MM (facility local time)

  The comparison is STRICT. At exactly the cutoff instant the state is
  already frozen.

CONFIGURATION:
  The cutoff hour is configuration, not a literal buried in a handler.
  Default is 08:00 in the facility's local time zone.

SEE ALSO:
  - ledger.go: Applies the rule on create and delete
  - config/config.go: Wires CUTOFF_HOUR / CUTOFF_MINUTE / CUTOFF_TZ
*/
package canteen

import "time"

// =============================================================================
// CUTOFF POLICY
// =============================================================================

// CutoffPolicy fixes the local wall-clock instant on each day after which
// that day's cancellation state is frozen.
type CutoffPolicy struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// DefaultCutoff returns the standard 08:00 local-time cutoff.
func DefaultCutoff() CutoffPolicy {
	return CutoffPolicy{Hour: 8, Minute: 0, Location: time.Local}
}

// Deadline returns the cutoff instant for a meal date.
func (p CutoffPolicy) Deadline(date Day) time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	return date.At(p.Hour, p.Minute, loc)
}

// Allows reports whether an operation on a meal dated date is still
// permitted at instant now. Strictly before the deadline only.
func (p CutoffPolicy) Allows(now time.Time, date Day) bool {
	return now.Before(p.Deadline(date))
}

// Check returns a DeadlineError when the cutoff has passed, nil otherwise.
func (p CutoffPolicy) Check(now time.Time, date Day) error {
	if p.Allows(now, date) {
		return nil
	}
	return &DeadlineError{Date: date, Deadline: p.Deadline(date), Now: now}
}
