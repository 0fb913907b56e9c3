/*
pricing.go - Point-in-time meal price resolution

PURPOSE:
  Resolves the unit price of a meal for a child from the child's current
  group's price table. The price is a live join: it is looked up at read and
  settlement time and NEVER persisted on the cancellation record, so
  settlements reflect prices as configured at settlement time.

FAIL-SOFT POLICY:
  Missing configuration must never block a cancellation from being recorded
  or listed. If the child has no group, the group is unknown, or the group
  has no price for the meal type, the resolved price is ZERO - not an error.
  A zero-priced cancellation still appears in listings and settlements; it
  just contributes nothing to the totals.

SEE ALSO:
  - types.go: Group.Price
  - settlement.go: Folds resolved prices into per-child totals
*/
package canteen

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE RESOLVER
// =============================================================================

// PriceResolver resolves current meal prices via the group directory.
type PriceResolver struct {
	Children ChildDirectory
	Groups   GroupDirectory
}

func NewPriceResolver(children ChildDirectory, groups GroupDirectory) *PriceResolver {
	return &PriceResolver{Children: children, Groups: groups}
}

// Resolve returns the current price of a meal for an already-loaded child.
// Zero when the child has no group or the group has no configured price.
func (r *PriceResolver) Resolve(ctx context.Context, child *Child, meal MealType) (decimal.Decimal, error) {
	if child == nil || child.GroupID == "" {
		return decimal.Zero, nil
	}
	group, err := r.Groups.GetGroup(ctx, child.GroupID)
	if err != nil {
		return decimal.Zero, err
	}
	return group.Price(meal), nil
}

// ResolveForChild looks the child up first. An unknown child resolves to
// zero here; existence checks belong to the ledger, not the resolver.
func (r *PriceResolver) ResolveForChild(ctx context.Context, childID ChildID, meal MealType) (decimal.Decimal, error) {
	child, err := r.Children.GetChild(ctx, childID)
	if err != nil {
		if IsNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return r.Resolve(ctx, child, meal)
}
