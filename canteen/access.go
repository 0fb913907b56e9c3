/*
access.go - Caller roles and child ownership scoping

PURPOSE:
  A cross-cutting policy applied at the entry of every ledger and settlement
  operation. Guardians see and mutate only their own children; facility
  staff (educators, managers, finance) are unrestricted. Unknown roles are
  rejected before any data access.

SILENT NARROWING:
  When a guardian supplies an explicit child filter that is not one of their
  children, the filter is silently replaced by their full child set. This is
  privacy-by-default: the response never confirms or denies that the foreign
  child exists. Do NOT "fix" this into an error.

SEE ALSO:
  - ledger.go: Uses ScopeFilter and RequireChildAccess
  - settlement.go: Uses RequireStaff
*/
package canteen

import "context"

// =============================================================================
// CALLER IDENTITY
// =============================================================================

// Role is the caller's role as supplied by the external session mechanism.
type Role string

const (
	RoleGuardian Role = "guardian"
	RoleEducator Role = "educator"
	RoleManager  Role = "manager"
	RoleFinance  Role = "finance"
)

// IsStaff reports whether the role has facility-wide visibility.
func (r Role) IsStaff() bool {
	switch r {
	case RoleEducator, RoleManager, RoleFinance:
		return true
	}
	return false
}

// Known reports whether the role is part of the vocabulary at all.
func (r Role) Known() bool {
	return r == RoleGuardian || r.IsStaff()
}

// Caller is the authenticated identity making a request. Authentication
// itself is external; the engine only consumes {id, role}.
type Caller struct {
	ID   string
	Role Role
}

// =============================================================================
// ACCESS SCOPE
// =============================================================================

// Scope narrows child-visibility per caller role. Stateless; it re-derives
// ownership from the directory on every call.
type Scope struct {
	Children ChildDirectory
}

func NewScope(children ChildDirectory) *Scope {
	return &Scope{Children: children}
}

// RequireKnown rejects unauthenticated or unknown-role callers.
func (s *Scope) RequireKnown(caller Caller) error {
	if caller.ID == "" || !caller.Role.Known() {
		return ErrForbidden
	}
	return nil
}

// RequireStaff rejects any caller that is not facility staff. Guardians
// never see aggregate settlement views.
func (s *Scope) RequireStaff(caller Caller) error {
	if err := s.RequireKnown(caller); err != nil {
		return err
	}
	if !caller.Role.IsStaff() {
		return ErrForbidden
	}
	return nil
}

// RequireChildAccess verifies the caller may act on the child. Staff always
// may; a guardian only when the child belongs to them.
func (s *Scope) RequireChildAccess(ctx context.Context, caller Caller, child *Child) error {
	if err := s.RequireKnown(caller); err != nil {
		return err
	}
	if caller.Role.IsStaff() {
		return nil
	}
	if child == nil || child.GuardianID != caller.ID {
		return ErrForbidden
	}
	return nil
}

// NarrowFilter rewrites a list filter for the caller's scope.
//
// Staff filters pass through untouched. For a guardian, the child set is
// forced to their own children: an explicit foreign child id is silently
// dropped (never an error, never a leak), and an empty filter becomes
// "all of my children". A guardian with no children matches nothing.
func (s *Scope) NarrowFilter(ctx context.Context, caller Caller, f Filter) (Filter, error) {
	if err := s.RequireKnown(caller); err != nil {
		return Filter{}, err
	}
	if caller.Role.IsStaff() {
		return f, nil
	}

	own, err := s.Children.ChildrenOfGuardian(ctx, caller.ID)
	if err != nil {
		return Filter{}, err
	}
	ownIDs := make([]ChildID, 0, len(own))
	ownSet := make(map[ChildID]bool, len(own))
	for _, c := range own {
		ownIDs = append(ownIDs, c.ID)
		ownSet[c.ID] = true
	}

	if len(f.ChildIDs) > 0 {
		kept := make([]ChildID, 0, len(f.ChildIDs))
		for _, id := range f.ChildIDs {
			if ownSet[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) > 0 {
			f.ChildIDs = kept
			return f, nil
		}
		// Out-of-scope filter: replace with the full own-child set.
	}

	if len(ownIDs) == 0 {
		// Matches nothing, but must not degrade into "no restriction".
		f.ChildIDs = []ChildID{""}
		return f, nil
	}
	f.ChildIDs = ownIDs
	return f, nil
}
