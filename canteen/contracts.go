/*
contracts.go - Interfaces to the external collaborators and to persistence

PURPOSE:
  The engine does not own the child directory, the group price tables or the
  general payment ledger. They are consumed through these contracts only.
  The CancellationStore is the engine's own persistence seam.

UNIQUENESS AT THE STORAGE LAYER:
  Insert MUST fail with ErrDuplicateCancellation (or a wrapping error) when
  the (child, date, meal type) triple already exists. The ledger pre-checks
  for a friendly error, but under concurrent requests the storage constraint
  is the only reliable guard - two racing cancellations must never both
  succeed.

IMPLEMENTATIONS:
  - store/sqlite: production store (also implements the directory contracts
    and the payment sink against the same database)
  - canteen/store: in-memory implementations for tests and dev

SEE ALSO:
  - ledger.go, settlement.go, pricing.go, access.go: Consumers
*/
package canteen

import "context"

// =============================================================================
// CHILD / GROUP DIRECTORY (external, read-only)
// =============================================================================

// ChildDirectory resolves children and guardian ownership.
type ChildDirectory interface {
	// GetChild returns the child record, or ErrChildNotFound.
	GetChild(ctx context.Context, id ChildID) (*Child, error)

	// ChildrenOfGuardian returns every child owned by a guardian.
	// Used to narrow guardian-scoped queries.
	ChildrenOfGuardian(ctx context.Context, guardianID string) ([]Child, error)
}

// GroupDirectory resolves group price tables. Prices are re-read on every
// resolution; the engine never caches them.
type GroupDirectory interface {
	// GetGroup returns the group record, or nil when the group is unknown.
	// Unknown groups are a fail-soft path (price resolves to zero), so this
	// is not an error.
	GetGroup(ctx context.Context, id GroupID) (*Group, error)
}

// =============================================================================
// PAYMENT SINK (external, create-only)
// =============================================================================

// PaymentSink creates records in the external payment ledger. The engine
// only ever writes reversing entries: negative amount, already paid.
type PaymentSink interface {
	CreatePayment(ctx context.Context, p Payment) (Payment, error)
}

// =============================================================================
// CANCELLATION STORE - The engine's own persistence
// =============================================================================

// CancellationStore persists meal cancellations.
//
// INVARIANT: Insert fails with (a wrapper of) ErrDuplicateCancellation when
// the (ChildID, Date, MealType) triple already exists.
// INVARIANT: MarkRefunded only ever flips false->true; re-marking an
// already-refunded id is a no-op counted as zero.
type CancellationStore interface {
	// Insert persists a new cancellation with Refunded=false.
	Insert(ctx context.Context, c Cancellation) error

	// Get returns a cancellation by id, or ErrCancellationNotFound.
	Get(ctx context.Context, id CancellationID) (*Cancellation, error)

	// Delete removes a cancellation. The ledger enforces the cutoff and
	// refund checks before calling this.
	Delete(ctx context.Context, id CancellationID) error

	// List returns cancellations matching the filter, ordered by date then
	// meal type.
	List(ctx context.Context, f Filter) ([]Cancellation, error)

	// MarkRefunded sets Refunded=true on the given ids and returns how many
	// records actually changed. Unknown and already-refunded ids are
	// skipped, never an error.
	MarkRefunded(ctx context.Context, ids []CancellationID) (int, error)
}
