/*
Package canteen implements the meal-cancellation and settlement engine.

PURPOSE:
  This package contains the domain types and rules for cancelling pre-ordered
  meals at a childcare facility and later reconciling those cancellations into
  refunds or reversing payment entries. Everything with an actual invariant
  lives here: cutoff timing, cancellation uniqueness, refund monotonicity,
  and money-correct settlement totals.

KEY CONCEPTS IN THIS FILE (types.go):
  - MealType: One of breakfast, lunch, snack
  - Cancellation: A recorded meal cancellation for a child on a day
  - CancellationView: A cancellation joined with its resolved price
  - Filter: Query filter for listing cancellations

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all prices - no floating point
  2. Point-in-time pricing: Price is never stored on the record; it is
     re-resolved from the group price table at every read and settlement
  3. Type Safety: Strong typing for meal types and calendar days
  4. Fail-soft pricing: A missing price resolves to zero, never an error

SEE ALSO:
  - ledger.go: Create, list and delete cancellations
  - settlement.go: Per-child aggregation and reconciliation actions
  - cutoff.go: The 08:00 cutoff rule
  - access.go: Role and ownership scoping
*/
package canteen

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MEAL TYPE
// =============================================================================

// MealType identifies which pre-ordered meal a cancellation refers to.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealSnack     MealType = "snack"
)

// MealTypes lists every known meal type in menu order.
var MealTypes = []MealType{MealBreakfast, MealLunch, MealSnack}

// ParseMealType validates a raw meal type value. Unknown values return
// ErrUnknownMealType - the caller must not persist them.
func ParseMealType(raw string) (MealType, error) {
	switch MealType(raw) {
	case MealBreakfast, MealLunch, MealSnack:
		return MealType(raw), nil
	}
	return "", &UnknownMealTypeError{Value: raw}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CancellationID string
type ChildID string
type GroupID string

// =============================================================================
// CANCELLATION - One cancelled meal for one child on one day
// =============================================================================

// Cancellation records that a given meal for a given child on a given day
// was cancelled before the cutoff.
//
// INVARIANT: (ChildID, Date, MealType) is unique among stored records.
// INVARIANT: Refunded flips false->true exactly once and never back.
type Cancellation struct {
	ID       CancellationID
	ChildID  ChildID
	Date     Day
	MealType MealType
	Reason   string
	Refunded bool

	// Audit fields
	CreatedAt time.Time
	CreatedBy string // Caller ID that recorded the cancellation
}

// CancellationView is a cancellation with its price resolved at read time.
// The price reflects the group price table as configured NOW, not as it was
// when the meal was cancelled.
type CancellationView struct {
	Cancellation
	Price decimal.Decimal
}

// =============================================================================
// QUERY FILTER
// =============================================================================

// Filter narrows cancellation queries. Zero values mean "no restriction".
// ChildIDs with entries restricts to those children; access scoping may
// rewrite it (see access.go).
type Filter struct {
	ChildIDs []ChildID
	From     Day // zero = unbounded
	To       Day // zero = unbounded
	Refunded *bool
}

// Matches reports whether a cancellation satisfies the filter.
// Used by the in-memory store; the SQLite store compiles the same
// predicate into SQL.
func (f Filter) Matches(c Cancellation) bool {
	if len(f.ChildIDs) > 0 {
		found := false
		for _, id := range f.ChildIDs {
			if id == c.ChildID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && c.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && c.Date.After(f.To) {
		return false
	}
	if f.Refunded != nil && c.Refunded != *f.Refunded {
		return false
	}
	return true
}

// =============================================================================
// EXTERNAL COLLABORATOR RECORDS (consumed via contracts.go)
// =============================================================================

// Child is the directory record for a child. GroupID may be empty when the
// child is not currently placed in a group.
type Child struct {
	ID         ChildID
	Name       string
	GuardianID string
	GroupID    GroupID
}

// Group carries the per-group meal price table. A nil price means the meal
// is not configured for the group and resolves to zero.
type Group struct {
	ID             GroupID
	Name           string
	BreakfastPrice *decimal.Decimal
	LunchPrice     *decimal.Decimal
	SnackPrice     *decimal.Decimal
}

// Price returns the configured price for a meal type, or zero when the
// group has no price for it.
func (g *Group) Price(meal MealType) decimal.Decimal {
	if g == nil {
		return decimal.Zero
	}
	var p *decimal.Decimal
	switch meal {
	case MealBreakfast:
		p = g.BreakfastPrice
	case MealLunch:
		p = g.LunchPrice
	case MealSnack:
		p = g.SnackPrice
	}
	if p == nil {
		return decimal.Zero
	}
	return *p
}

// PaymentStatus mirrors the external payment ledger's status vocabulary.
// The engine only ever writes StatusPaid (reversing entries are settled
// the moment they are created).
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
)

// Payment is the external payment ledger record. Reversing entries created
// by the settlement engine carry a negative Amount and StatusPaid.
type Payment struct {
	ID          string
	ChildID     ChildID
	Amount      decimal.Decimal
	Description string
	DueDate     time.Time
	Status      PaymentStatus
	PaidDate    *time.Time
	CreatedAt   time.Time
}
