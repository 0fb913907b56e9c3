/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data for testing and demos. Each scenario creates groups with price
  tables, families, and cancellations that demonstrate specific flows.

AVAILABLE SCENARIOS:
  small-facility:   Two groups, three families, upcoming cancellations
  settlement-due:   A month of past cancellations ready for reconciliation

HOW SCENARIOS WORK:
  1. Reset database (clear all data)
  2. Create groups with meal prices
  3. Create children linked to guardians
  4. Insert cancellation records directly (the ledger's cutoff applies to
     live requests, not to seeded history)

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "settlement-due"}

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/canteen-engine/canteen"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-facility",
		Name:        "Small Facility",
		Description: "Two groups, three families, upcoming cancellations before the cutoff",
	},
	{
		ID:          "settlement-due",
		Name:        "Settlement Due",
		Description: "A month of past cancellations ready for refund reconciliation",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the database and seeds the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "small-facility":
		err = h.loadSmallFacilityScenario(ctx)
	case "settlement-due":
		err = h.loadSettlementDueScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (h *Handler) seedGroupsAndFamilies(ctx context.Context) error {
	groups := []canteen.Group{
		{ID: "grp-sun", Name: "Sunflowers",
			BreakfastPrice: price("4.00"), LunchPrice: price("12.50"), SnackPrice: price("3.20")},
		{ID: "grp-bee", Name: "Bumblebees",
			BreakfastPrice: price("4.50"), LunchPrice: price("13.00")}, // no snack price configured
	}
	for _, g := range groups {
		if err := h.Store.SaveGroup(ctx, g); err != nil {
			return err
		}
	}

	children := []canteen.Child{
		{ID: "child-anna", Name: "Anna K.", GuardianID: "guardian-k", GroupID: "grp-sun"},
		{ID: "child-ben", Name: "Ben K.", GuardianID: "guardian-k", GroupID: "grp-bee"},
		{ID: "child-clara", Name: "Clara M.", GuardianID: "guardian-m", GroupID: "grp-sun"},
		{ID: "child-dani", Name: "Dani P.", GuardianID: "guardian-p"}, // not yet placed in a group
	}
	for _, c := range children {
		if err := h.Store.SaveChild(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedCancellation(ctx context.Context, childID canteen.ChildID, date canteen.Day, meal canteen.MealType, refunded bool) error {
	return h.Store.Insert(ctx, canteen.Cancellation{
		ID:        canteen.CancellationID(uuid.NewString()),
		ChildID:   childID,
		Date:      date,
		MealType:  meal,
		Reason:    "seeded",
		Refunded:  refunded,
		CreatedAt: time.Now(),
		CreatedBy: "scenario",
	})
}

// loadSmallFacilityScenario seeds upcoming cancellations that are still
// mutable (dates in the future, before their cutoffs).
func (h *Handler) loadSmallFacilityScenario(ctx context.Context) error {
	if err := h.seedGroupsAndFamilies(ctx); err != nil {
		return err
	}

	tomorrow := canteen.DayOfTime(time.Now()).AddDays(1)
	seeds := []struct {
		child canteen.ChildID
		date  canteen.Day
		meal  canteen.MealType
	}{
		{"child-anna", tomorrow, canteen.MealLunch},
		{"child-anna", tomorrow.AddDays(1), canteen.MealBreakfast},
		{"child-ben", tomorrow, canteen.MealSnack},
		{"child-clara", tomorrow.AddDays(2), canteen.MealLunch},
	}
	for _, s := range seeds {
		if err := h.seedCancellation(ctx, s.child, s.date, s.meal, false); err != nil {
			return err
		}
	}
	return nil
}

// loadSettlementDueScenario seeds a month of past cancellations, some
// already refunded, so the settlement views have something to show.
func (h *Handler) loadSettlementDueScenario(ctx context.Context) error {
	if err := h.seedGroupsAndFamilies(ctx); err != nil {
		return err
	}

	start := canteen.DayOfTime(time.Now()).AddDays(-30)
	for i := 0; i < 30; i += 3 {
		day := start.AddDays(i)
		if err := h.seedCancellation(ctx, "child-anna", day, canteen.MealLunch, i < 9); err != nil {
			return err
		}
		if i%6 == 0 {
			if err := h.seedCancellation(ctx, "child-ben", day, canteen.MealBreakfast, false); err != nil {
				return err
			}
		}
	}
	// Dani has no group: resolves to zero, must still show up in listings.
	if err := h.seedCancellation(ctx, "child-dani", start.AddDays(5), canteen.MealLunch, false); err != nil {
		return err
	}
	return nil
}
