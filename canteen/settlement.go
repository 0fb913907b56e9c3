/*
settlement.go - Per-child settlement aggregation and reconciliation

PURPOSE:
  Lets financial staff turn recorded cancellations into money that flows
  back to guardians, without double-counting. Two reconciliation actions:

    MarkRefunded       - flip refunded=true on a set of ids (bookkeeping
                         only; the money moved outside the system)
    GeneratePayments   - create one reversing payment entry per child from
                         the still-unrefunded subset, then mark those ids
                         refunded

NO DOUBLE REIMBURSEMENT:
  GeneratePayments silently drops ids that are already refunded. Running
  the same id set twice therefore produces payments only on the first run.

PRICES:
  Totals are computed from prices resolved NOW (see pricing.go). A child
  whose cancellations all resolve to zero gets no payment entry and is NOT
  auto-marked refunded - whether zero-value entries should be swept is the
  caller's decision via MarkRefunded.

AUTHORIZATION:
  Staff only, checked before any data access. Guardians never see aggregate
  settlement views.

SEE ALSO:
  - ledger.go: Produces the records settled here
  - contracts.go: PaymentSink contract
*/
package canteen

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// SETTLEMENT VIEW TYPES (derived, never persisted)
// =============================================================================

// ChildSettlement folds one child's cancellations in the queried window.
type ChildSettlement struct {
	Child           Child
	Group           *Group // nil when the child has no group
	Cancellations   []CancellationView
	TotalUnrefunded decimal.Decimal
	TotalRefunded   decimal.Decimal
}

// SettlementSummary is the grand totals across all children in the window.
type SettlementSummary struct {
	ChildCount        int
	CancellationCount int
	TotalUnrefunded   decimal.Decimal
	TotalRefunded     decimal.Decimal
}

// SettlementReport is the full response of a settlement listing.
type SettlementReport struct {
	Settlements []ChildSettlement
	Summary     SettlementSummary
}

// SettlementFilter narrows a settlement listing.
type SettlementFilter struct {
	From           Day
	To             Day
	GroupID        GroupID
	ChildID        ChildID
	OnlyUnrefunded bool
}

// =============================================================================
// SETTLER
// =============================================================================

// Settler drives settlement listing and the two reconciliation actions.
type Settler struct {
	Store    CancellationStore
	Children ChildDirectory
	Groups   GroupDirectory
	Resolver *PriceResolver
	Payments PaymentSink
	Scope    *Scope
	Log      *zap.Logger

	now func() time.Time
}

func NewSettler(store CancellationStore, children ChildDirectory, groups GroupDirectory, payments PaymentSink, log *zap.Logger) *Settler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Settler{
		Store:    store,
		Children: children,
		Groups:   groups,
		Resolver: NewPriceResolver(children, groups),
		Payments: payments,
		Scope:    NewScope(children),
		Log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the wall clock. Tests only.
func (s *Settler) SetClock(now func() time.Time) { s.now = now }

// =============================================================================
// LIST SETTLEMENTS
// =============================================================================

// List returns one settlement entry per child with cancellations in the
// window, plus the grand summary. Staff only.
func (s *Settler) List(ctx context.Context, caller Caller, f SettlementFilter) (*SettlementReport, error) {
	if err := s.Scope.RequireStaff(caller); err != nil {
		return nil, err
	}

	lf := Filter{From: f.From, To: f.To}
	if f.ChildID != "" {
		lf.ChildIDs = []ChildID{f.ChildID}
	}
	if f.OnlyUnrefunded {
		unrefunded := false
		lf.Refunded = &unrefunded
	}

	records, err := s.Store.List(ctx, lf)
	if err != nil {
		return nil, fmt.Errorf("list cancellations: %w", err)
	}

	byChild := make(map[ChildID][]Cancellation)
	for _, c := range records {
		byChild[c.ChildID] = append(byChild[c.ChildID], c)
	}

	report := &SettlementReport{
		Summary: SettlementSummary{
			TotalUnrefunded: decimal.Zero,
			TotalRefunded:   decimal.Zero,
		},
	}

	for childID, cs := range byChild {
		child, err := s.Children.GetChild(ctx, childID)
		if err != nil {
			if IsNotFound(err) {
				// Directory record vanished under us; the cancellations
				// still count, with no group and zero prices.
				child = &Child{ID: childID}
			} else {
				return nil, err
			}
		}

		var group *Group
		if child.GroupID != "" {
			group, err = s.Groups.GetGroup(ctx, child.GroupID)
			if err != nil {
				return nil, err
			}
		}
		if f.GroupID != "" && (group == nil || group.ID != f.GroupID) {
			continue
		}

		entry := ChildSettlement{
			Child:           *child,
			Group:           group,
			TotalUnrefunded: decimal.Zero,
			TotalRefunded:   decimal.Zero,
		}
		for _, c := range cs {
			price := group.Price(c.MealType)
			entry.Cancellations = append(entry.Cancellations, CancellationView{Cancellation: c, Price: price})
			if c.Refunded {
				entry.TotalRefunded = entry.TotalRefunded.Add(price)
			} else {
				entry.TotalUnrefunded = entry.TotalUnrefunded.Add(price)
			}
		}

		report.Settlements = append(report.Settlements, entry)
		report.Summary.ChildCount++
		report.Summary.CancellationCount += len(cs)
		report.Summary.TotalUnrefunded = report.Summary.TotalUnrefunded.Add(entry.TotalUnrefunded)
		report.Summary.TotalRefunded = report.Summary.TotalRefunded.Add(entry.TotalRefunded)
	}

	sort.Slice(report.Settlements, func(i, j int) bool {
		return report.Settlements[i].Child.ID < report.Settlements[j].Child.ID
	})
	return report, nil
}

// =============================================================================
// MARK REFUNDED
// =============================================================================

// MarkRefunded flips refunded=true on the given ids and reports how many
// records changed. Idempotent: already-refunded and unknown ids count zero.
// Callers detect under-application by comparing the count to what they sent.
func (s *Settler) MarkRefunded(ctx context.Context, caller Caller, ids []CancellationID) (int, error) {
	if err := s.Scope.RequireStaff(caller); err != nil {
		return 0, err
	}
	count, err := s.Store.MarkRefunded(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("mark refunded: %w", err)
	}
	s.Log.Info("cancellations marked refunded",
		zap.Int("requested", len(ids)),
		zap.Int("marked", count),
		zap.String("caller", caller.ID))
	return count, nil
}

// =============================================================================
// GENERATE REVERSING PAYMENTS
// =============================================================================

// GeneratePayments creates reversing payment entries for the still-unrefunded
// subset of ids, one entry per child with a strictly positive total, and
// marks the contributing ids refunded.
func (s *Settler) GeneratePayments(ctx context.Context, caller Caller, ids []CancellationID) ([]Payment, error) {
	if err := s.Scope.RequireStaff(caller); err != nil {
		return nil, err
	}

	// Resolve the eligible subset: existing and not yet refunded.
	type item struct {
		c     Cancellation
		price decimal.Decimal
	}
	byChild := make(map[ChildID][]item)
	var childOrder []ChildID
	for _, id := range ids {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue // bulk actions process the valid subset
			}
			return nil, err
		}
		if c.Refunded {
			continue // no double reimbursement
		}
		price, err := s.Resolver.ResolveForChild(ctx, c.ChildID, c.MealType)
		if err != nil {
			return nil, err
		}
		if _, seen := byChild[c.ChildID]; !seen {
			childOrder = append(childOrder, c.ChildID)
		}
		byChild[c.ChildID] = append(byChild[c.ChildID], item{c: *c, price: price})
	}

	var payments []Payment
	for _, childID := range childOrder {
		items := byChild[childID]

		total := decimal.Zero
		for _, it := range items {
			total = total.Add(it.price)
		}
		if !total.IsPositive() {
			// Zero-value children get no payment entry and stay unrefunded;
			// sweeping them is the caller's call via MarkRefunded.
			continue
		}

		now := s.now()
		p := Payment{
			ID:          uuid.NewString(),
			ChildID:     childID,
			Amount:      total.Neg(),
			Description: fmt.Sprintf("Meal refund: %d cancelled meal(s)", len(items)),
			DueDate:     now,
			Status:      StatusPaid,
			PaidDate:    &now,
		}
		created, err := s.Payments.CreatePayment(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("create reversing payment for child %s: %w", childID, err)
		}

		markIDs := make([]CancellationID, len(items))
		for i, it := range items {
			markIDs[i] = it.c.ID
		}
		if _, err := s.Store.MarkRefunded(ctx, markIDs); err != nil {
			return nil, fmt.Errorf("mark refunded after payment %s: %w", created.ID, err)
		}

		s.Log.Info("reversing payment created",
			zap.String("child", string(childID)),
			zap.String("amount", created.Amount.String()),
			zap.Int("meals", len(items)),
			zap.String("caller", caller.ID))
		payments = append(payments, created)
	}

	return payments, nil
}
