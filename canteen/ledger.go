/*
ledger.go - The cancellation ledger

PURPOSE:
  Records individual meal-cancellation events and enforces the rules around
  them: the cutoff, the (child, date, meal type) uniqueness invariant, and
  refund immutability. This is the only component that creates or deletes
  cancellation records.

LIFECYCLE OF A CANCELLATION:
  1. Created by a guardian or staff member strictly before the cutoff
  2. Optionally deleted ("un-cancelled") - same cutoff, same role rules
  3. Flipped to refunded by settlement (one-way, see settlement.go)
  4. Once refunded, never deleted

WHY DELETE INSTEAD OF A STATUS?
  A cancellation that is withdrawn before the cutoff never happened as far
  as the kitchen and the books are concerned. After the cutoff the record
  is a financial fact and becomes immutable.

RACES:
  Two concurrent cancels of the same meal: the pre-check may pass for both,
  but the store's uniqueness constraint fails the loser with a conflict.
  Delete racing a refund after the deadline: the delete re-reads wall-clock
  time on every call, so it loses.

SEE ALSO:
  - cutoff.go: Deadline evaluation
  - access.go: Ownership checks
  - contracts.go: CancellationStore contract
*/
package canteen

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CANCELLATION LEDGER
// =============================================================================

// Ledger exposes list/cancel/uncancel over the cancellation store with the
// cutoff, uniqueness and scoping rules applied.
type Ledger struct {
	Store    CancellationStore
	Children ChildDirectory
	Resolver *PriceResolver
	Scope    *Scope
	Cutoff   CutoffPolicy

	// now is injectable for deterministic deadline tests.
	now func() time.Time
}

func NewLedger(store CancellationStore, children ChildDirectory, resolver *PriceResolver, cutoff CutoffPolicy) *Ledger {
	return &Ledger{
		Store:    store,
		Children: children,
		Resolver: resolver,
		Scope:    NewScope(children),
		Cutoff:   cutoff,
		now:      time.Now,
	}
}

// SetClock overrides the wall clock. Tests only.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// =============================================================================
// LIST
// =============================================================================

// List returns cancellations matching the filter, scoped to the caller and
// joined with the price resolved at read time.
func (l *Ledger) List(ctx context.Context, caller Caller, f Filter) ([]CancellationView, error) {
	scoped, err := l.Scope.NarrowFilter(ctx, caller, f)
	if err != nil {
		return nil, err
	}

	records, err := l.Store.List(ctx, scoped)
	if err != nil {
		return nil, fmt.Errorf("list cancellations: %w", err)
	}

	views := make([]CancellationView, 0, len(records))
	for _, c := range records {
		price, err := l.Resolver.ResolveForChild(ctx, c.ChildID, c.MealType)
		if err != nil {
			return nil, fmt.Errorf("resolve price for %s: %w", c.ID, err)
		}
		views = append(views, CancellationView{Cancellation: c, Price: price})
	}
	return views, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelRequest carries the inputs for cancelling a meal.
type CancelRequest struct {
	ChildID  ChildID
	Date     Day
	MealType MealType
	Reason   string
}

// Cancel records a meal cancellation.
//
// Order of checks matters for the caller-visible error:
// validation, then child existence, then ownership, then cutoff, then
// uniqueness. The store's UNIQUE constraint backs the uniqueness pre-check
// under concurrency.
func (l *Ledger) Cancel(ctx context.Context, caller Caller, req CancelRequest) (*CancellationView, error) {
	if req.ChildID == "" {
		return nil, fmt.Errorf("%w: child_id", ErrMissingField)
	}
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: date", ErrMissingField)
	}
	meal, err := ParseMealType(string(req.MealType))
	if err != nil {
		return nil, err
	}

	child, err := l.Children.GetChild(ctx, req.ChildID)
	if err != nil {
		return nil, err
	}
	if err := l.Scope.RequireChildAccess(ctx, caller, child); err != nil {
		return nil, err
	}

	if err := l.Cutoff.Check(l.now(), req.Date); err != nil {
		return nil, err
	}

	if err := l.checkUnique(ctx, req.ChildID, req.Date, meal); err != nil {
		return nil, err
	}

	c := Cancellation{
		ID:        CancellationID(uuid.NewString()),
		ChildID:   req.ChildID,
		Date:      req.Date,
		MealType:  meal,
		Reason:    req.Reason,
		Refunded:  false,
		CreatedAt: l.now(),
		CreatedBy: caller.ID,
	}
	if err := l.Store.Insert(ctx, c); err != nil {
		return nil, err
	}

	price, err := l.Resolver.Resolve(ctx, child, meal)
	if err != nil {
		return nil, err
	}
	return &CancellationView{Cancellation: c, Price: price}, nil
}

// =============================================================================
// UNCANCEL
// =============================================================================

// Uncancel deletes an existing cancellation.
//
// The cutoff is evaluated against the CANCELLATION'S OWN DATE: once 08:00
// on that date has passed, the record is frozen - the kitchen order was
// committed at the cutoff. A refunded record is likewise frozen; refund
// implies the settlement step for that date already ran, so it is rejected
// as deadline-passed rather than leaking a distinct state.
func (l *Ledger) Uncancel(ctx context.Context, caller Caller, id CancellationID) error {
	c, err := l.Store.Get(ctx, id)
	if err != nil {
		return err
	}

	child, err := l.Children.GetChild(ctx, c.ChildID)
	if err != nil {
		return err
	}
	if err := l.Scope.RequireChildAccess(ctx, caller, child); err != nil {
		return err
	}

	if c.Refunded {
		return &DeadlineError{Date: c.Date, Deadline: l.Cutoff.Deadline(c.Date), Now: l.now()}
	}
	if err := l.Cutoff.Check(l.now(), c.Date); err != nil {
		return err
	}

	return l.Store.Delete(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Ledger) checkUnique(ctx context.Context, childID ChildID, date Day, meal MealType) error {
	existing, err := l.Store.List(ctx, Filter{ChildIDs: []ChildID{childID}, From: date, To: date})
	if err != nil {
		return fmt.Errorf("check uniqueness: %w", err)
	}
	for _, e := range existing {
		if e.MealType == meal {
			return &DuplicateCancellationError{
				ChildID:    childID,
				Date:       date,
				MealType:   meal,
				ExistingID: e.ID,
			}
		}
	}
	return nil
}
