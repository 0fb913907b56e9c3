/*
errors.go - Centralized error taxonomy for the cancellation engine

PURPOSE:
  All caller-visible failure modes in one place. The HTTP layer maps these
  to status codes; nothing in this package ever retries or swallows them.

ERROR CATEGORIES:
  1. Validation  - malformed meal type, missing required field
  2. Not found   - unknown child or cancellation id
  3. Forbidden   - role/ownership mismatch
  4. Deadline    - cutoff rule violated
  5. Conflict    - duplicate cancellation

DELIBERATE NON-ERRORS:
  Two fail-soft paths are NOT errors by design:
  - An unresolvable price (child without group, unconfigured meal) is zero
  - A guardian filtering on a child that is not theirs gets the filter
    silently narrowed to their own children (privacy-by-default, no leak)

USAGE:
  if errors.Is(err, canteen.ErrDeadlinePassed) { ... }

  var dup *canteen.DuplicateCancellationError
  if errors.As(err, &dup) { fmt.Println(dup.ExistingID) }

SEE ALSO:
  - ledger.go, settlement.go: Producers of these errors
  - api/handlers.go: HTTP status mapping
*/
package canteen

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownMealType is returned when a meal type is not one of
	// breakfast, lunch, snack.
	ErrUnknownMealType = errors.New("unknown meal type")

	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrChildNotFound is returned when a referenced child doesn't exist.
	ErrChildNotFound = errors.New("child not found")

	// ErrCancellationNotFound is returned when a cancellation id is unknown.
	ErrCancellationNotFound = errors.New("cancellation not found")

	// ErrForbidden is returned on a role or ownership mismatch.
	ErrForbidden = errors.New("forbidden")

	// ErrDeadlinePassed is returned when the cutoff for the meal's date has
	// already passed. Both cancel and un-cancel respect the same boundary.
	ErrDeadlinePassed = errors.New("cancellation deadline passed")

	// ErrDuplicateCancellation is returned when the (child, date, meal type)
	// triple is already cancelled. This enforces the uniqueness invariant.
	ErrDuplicateCancellation = errors.New("meal already cancelled")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnknownMealTypeError reports the rejected raw value.
type UnknownMealTypeError struct {
	Value string
}

func (e *UnknownMealTypeError) Error() string {
	return fmt.Sprintf("unknown meal type %q (want breakfast, lunch or snack)", e.Value)
}

func (e *UnknownMealTypeError) Unwrap() error { return ErrUnknownMealType }

// DuplicateCancellationError provides details about a uniqueness violation.
type DuplicateCancellationError struct {
	ChildID    ChildID
	Date       Day
	MealType   MealType
	ExistingID CancellationID
}

func (e *DuplicateCancellationError) Error() string {
	return fmt.Sprintf("meal already cancelled: %s on %s for child %s (existing: %s)",
		e.MealType, e.Date, e.ChildID, e.ExistingID)
}

func (e *DuplicateCancellationError) Unwrap() error { return ErrDuplicateCancellation }

// DeadlineError reports which cutoff was missed and by how much.
type DeadlineError struct {
	Date     Day
	Deadline time.Time
	Now      time.Time
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("cutoff for %s passed at %s (now %s)",
		e.Date, e.Deadline.Format(time.RFC3339), e.Now.Format(time.RFC3339))
}

func (e *DeadlineError) Unwrap() error { return ErrDeadlinePassed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a violated business rule, as opposed to a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownMealType) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrDuplicateCancellation) ||
		errors.Is(err, ErrDeadlinePassed) ||
		errors.Is(err, ErrForbidden)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChildNotFound) ||
		errors.Is(err, ErrCancellationNotFound)
}
