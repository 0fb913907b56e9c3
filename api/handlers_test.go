package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/canteen-engine/api"
	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// apiFixture runs the full router over a throwaway sqlite database with a
// frozen clock: the morning of 2025-06-10, one hour before the cutoff.
type apiFixture struct {
	handler *api.Handler
	router  http.Handler
	store   *sqlite.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cutoff := canteen.CutoffPolicy{Hour: 8, Minute: 0, Location: time.UTC}
	h := api.NewHandler(store, cutoff, nil)
	now := time.Date(2025, time.June, 10, 7, 0, 0, 0, time.UTC)
	h.Ledger.SetClock(func() time.Time { return now })
	h.Settler.SetClock(func() time.Time { return now })

	f := &apiFixture{handler: h, router: api.NewRouter(h, nil), store: store}
	f.seed(t)
	return f
}

func (f *apiFixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	lunch := decimal.RequireFromString("12.50")
	breakfast := decimal.RequireFromString("4.00")
	require.NoError(t, f.store.SaveGroup(ctx, canteen.Group{
		ID: "grp-sun", Name: "Sunflowers",
		BreakfastPrice: &breakfast, LunchPrice: &lunch,
	}))
	require.NoError(t, f.store.SaveChild(ctx, canteen.Child{
		ID: "child-c", Name: "C", GuardianID: "guardian-1", GroupID: "grp-sun",
	}))
	require.NoError(t, f.store.SaveChild(ctx, canteen.Child{
		ID: "child-d", Name: "D", GuardianID: "guardian-2", GroupID: "grp-sun",
	}))
}

// do performs a request as the given caller and decodes the JSON response.
func (f *apiFixture) do(t *testing.T, method, path string, caller *canteen.Caller, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller != nil {
		req.Header.Set("X-Caller-ID", caller.ID)
		req.Header.Set("X-Caller-Role", string(caller.Role))
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
	}
	return rec
}

var (
	apiGuardian1 = canteen.Caller{ID: "guardian-1", Role: canteen.RoleGuardian}
	apiGuardian2 = canteen.Caller{ID: "guardian-2", Role: canteen.RoleGuardian}
	apiFinance   = canteen.Caller{ID: "staff-1", Role: canteen.RoleFinance}
)

func cancelBody(childID, date, meal string) map[string]string {
	return map[string]string{"child_id": childID, "date": date, "meal_type": meal}
}

// =============================================================================
// AUTH
// =============================================================================

func TestAPI_MissingCaller_Unauthorized(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/cancellations", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_UnknownRole_Unauthorized(t *testing.T) {
	f := newAPIFixture(t)

	bogus := canteen.Caller{ID: "someone", Role: "janitor"}
	rec := f.do(t, http.MethodGet, "/api/cancellations", &bogus, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_Health_NoAuthNeeded(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/health", nil, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// CANCELLATIONS
// =============================================================================

func TestAPI_CancelMeal_Created(t *testing.T) {
	// GIVEN: Guardian 1 before the cutoff
	// WHEN: POSTing a lunch cancellation for their child
	// THEN: 201 with the priced record

	f := newAPIFixture(t)

	var dto struct {
		ID       string `json:"id"`
		Price    string `json:"price"`
		Refunded bool   `json:"refunded"`
	}
	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "2025-06-10", "lunch"), &dto)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, dto.ID)
	assert.Equal(t, "12.50", dto.Price)
	assert.False(t, dto.Refunded)
}

func TestAPI_CancelMeal_Duplicate_Conflict(t *testing.T) {
	f := newAPIFixture(t)
	body := cancelBody("child-c", "2025-06-10", "lunch")

	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1, body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1, body, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "CONFLICT", errResp.Code)
}

func TestAPI_CancelMeal_AfterCutoff_Unprocessable(t *testing.T) {
	// The clock is 07:00 on 2025-06-09's morning after: a cancellation for
	// 2025-06-09 is already frozen.
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "2025-06-09", "lunch"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var errResp struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "DEADLINE_PASSED", errResp.Code)
}

func TestAPI_CancelMeal_ForeignChild_Forbidden(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian2,
		cancelBody("child-c", "2025-06-10", "lunch"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_CancelMeal_BadPayloads(t *testing.T) {
	f := newAPIFixture(t)

	// missing fields fail validation
	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		map[string]string{"child_id": "child-c"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// malformed date
	rec = f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "10.06.2025", "lunch"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown meal type passes shape validation, fails the vocabulary
	rec = f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "2025-06-10", "dinner"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// unknown child
	rec = f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("nobody", "2025-06-10", "lunch"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ListCancellations_ScopedToGuardian(t *testing.T) {
	// GIVEN: Records for both guardians' children
	// WHEN: Guardian 1 lists without a filter
	// THEN: Only their own child's records come back

	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "2025-06-10", "lunch"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian2,
		cancelBody("child-d", "2025-06-10", "lunch"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var list []struct {
		ChildID string `json:"child_id"`
	}
	rec = f.do(t, http.MethodGet, "/api/cancellations", &apiGuardian1, nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 1)
	assert.Equal(t, "child-c", list[0].ChildID)

	// staff see everything
	rec = f.do(t, http.MethodGet, "/api/cancellations", &apiFinance, nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 2)
}

func TestAPI_Uncancel_DeletesOwnRecord(t *testing.T) {
	f := newAPIFixture(t)

	var dto struct {
		ID string `json:"id"`
	}
	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "2025-06-10", "lunch"), &dto)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cancellations/"+dto.ID, &apiGuardian1, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cancellations/"+dto.ID, &apiGuardian1, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func TestAPI_Settlements_StaffOnly(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/settlements", &apiGuardian1, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/settlements", &apiFinance, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_SettlementFlow_RefundAndPay(t *testing.T) {
	// GIVEN: Two cancellations for child C
	// WHEN: Finance generates payments for both ids
	// THEN: One reversing entry of -25.00, records show refunded, and the
	//       payment appears in the child's history

	f := newAPIFixture(t)

	var first, second struct {
		ID string `json:"id"`
	}
	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "2025-06-10", "lunch"), &first)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "2025-06-11", "lunch"), &second)
	require.Equal(t, http.StatusCreated, rec.Code)

	var summary struct {
		Summary struct {
			TotalUnrefunded string `json:"total_unrefunded"`
		} `json:"summary"`
	}
	rec = f.do(t, http.MethodGet, "/api/settlements", &apiFinance, nil, &summary)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "25.00", summary.Summary.TotalUnrefunded)

	body := map[string][]string{"cancellation_ids": {first.ID, second.ID}}
	var payResp struct {
		Payments []struct {
			Amount string `json:"amount"`
			Status string `json:"status"`
		} `json:"payments"`
	}
	rec = f.do(t, http.MethodPost, "/api/settlements/payments", &apiFinance, body, &payResp)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, payResp.Payments, 1)
	assert.Equal(t, "-25.00", payResp.Payments[0].Amount)
	assert.Equal(t, "paid", payResp.Payments[0].Status)

	// a second run finds nothing left to reimburse
	rec = f.do(t, http.MethodPost, "/api/settlements/payments", &apiFinance, body, &payResp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, payResp.Payments)

	// the guardian sees the payment on their child's history
	var history []struct {
		Amount string `json:"amount"`
	}
	rec = f.do(t, http.MethodGet, "/api/children/child-c/payments", &apiGuardian1, nil, &history)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, history, 1)
	assert.Equal(t, "-25.00", history[0].Amount)

	// but not on a child that is not theirs
	rec = f.do(t, http.MethodGet, "/api/children/child-d/payments", &apiGuardian1, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_MarkRefunded_ReportsCount(t *testing.T) {
	f := newAPIFixture(t)

	var dto struct {
		ID string `json:"id"`
	}
	rec := f.do(t, http.MethodPost, "/api/cancellations", &apiGuardian1,
		cancelBody("child-c", "2025-06-10", "lunch"), &dto)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := map[string][]string{"cancellation_ids": {dto.ID, "no-such-id"}}
	var resp struct {
		Count int `json:"count"`
	}
	rec = f.do(t, http.MethodPost, "/api/settlements/refunds", &apiFinance, body, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resp.Count)

	rec = f.do(t, http.MethodPost, "/api/settlements/refunds", &apiFinance, body, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, resp.Count)
}

func TestAPI_MarkRefunded_EmptyIDs_BadRequest(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string][]string{"cancellation_ids": {}}
	rec := f.do(t, http.MethodPost, "/api/settlements/refunds", &apiFinance, body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SCENARIOS AND MAINTENANCE
// =============================================================================

func TestAPI_Scenarios_LoadAndReset(t *testing.T) {
	f := newAPIFixture(t)

	var scenarios []struct {
		ID string `json:"id"`
	}
	rec := f.do(t, http.MethodGet, "/api/scenarios", &apiFinance, nil, &scenarios)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, scenarios)

	rec = f.do(t, http.MethodPost, "/api/scenarios/load", &apiFinance,
		map[string]string{"scenario_id": "settlement-due"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Settlements []json.RawMessage `json:"settlements"`
	}
	rec = f.do(t, http.MethodGet, "/api/settlements", &apiFinance, nil, &report)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, report.Settlements)

	rec = f.do(t, http.MethodPost, "/api/admin/reset", &apiFinance, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/settlements", &apiFinance, nil, &report)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, report.Settlements)
}
