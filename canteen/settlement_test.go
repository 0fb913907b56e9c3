package canteen_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/canteen-engine/canteen"
	"github.com/warp/canteen-engine/canteen/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// settleFixture extends the ledger fixture with a settler and a payment log.
type settleFixture struct {
	*fixture
	payments *store.PaymentLog
	settler  *canteen.Settler
}

func newSettleFixture(t *testing.T) *settleFixture {
	t.Helper()
	f := &settleFixture{
		fixture:  newFixture(t),
		payments: store.NewPaymentLog(),
	}
	f.settler = canteen.NewSettler(f.store, f.directory, f.directory, f.payments, nil)
	f.settler.SetClock(func() time.Time { return f.now })
	return f
}

func mustDecimal(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// LIST SETTLEMENTS
// =============================================================================

func TestSettlements_FoldedPerChild(t *testing.T) {
	// GIVEN: C has a lunch and a breakfast cancelled, D a lunch
	// WHEN: A manager lists settlements
	// THEN: One entry per child, totals summed per child and overall

	f := newSettleFixture(t)
	cancelLunch(t, f.fixture, guardian1, "child-c", june(10))
	_, err := f.ledger.Cancel(context.Background(), guardian1, canteen.CancelRequest{
		ChildID: "child-c", Date: june(11), MealType: canteen.MealBreakfast,
	})
	require.NoError(t, err)
	cancelLunch(t, f.fixture, guardian2, "child-d", june(12))

	report, err := f.settler.List(context.Background(), manager, canteen.SettlementFilter{})
	require.NoError(t, err)

	require.Len(t, report.Settlements, 2)
	assert.Equal(t, canteen.ChildID("child-c"), report.Settlements[0].Child.ID)
	assert.True(t, report.Settlements[0].TotalUnrefunded.Equal(mustDecimal("16.50")),
		"child-c total %s", report.Settlements[0].TotalUnrefunded)
	assert.True(t, report.Settlements[1].TotalUnrefunded.Equal(mustDecimal("12.50")))

	assert.Equal(t, 2, report.Summary.ChildCount)
	assert.Equal(t, 3, report.Summary.CancellationCount)
	assert.True(t, report.Summary.TotalUnrefunded.Equal(mustDecimal("29.00")))
	assert.True(t, report.Summary.TotalRefunded.IsZero())
}

func TestSettlements_RefundedSplitsTotals(t *testing.T) {
	// Refunded records land in TotalRefunded, never in TotalUnrefunded.
	f := newSettleFixture(t)
	first := cancelLunch(t, f.fixture, guardian1, "child-c", june(10))
	cancelLunch(t, f.fixture, guardian1, "child-c", june(11))

	_, err := f.settler.MarkRefunded(context.Background(), manager, []canteen.CancellationID{first.ID})
	require.NoError(t, err)

	report, err := f.settler.List(context.Background(), manager, canteen.SettlementFilter{})
	require.NoError(t, err)

	require.Len(t, report.Settlements, 1)
	assert.True(t, report.Settlements[0].TotalRefunded.Equal(mustDecimal("12.50")))
	assert.True(t, report.Settlements[0].TotalUnrefunded.Equal(mustDecimal("12.50")))
}

func TestSettlements_GuardianForbidden(t *testing.T) {
	f := newSettleFixture(t)

	_, err := f.settler.List(context.Background(), guardian1, canteen.SettlementFilter{})
	assert.ErrorIs(t, err, canteen.ErrForbidden)

	_, err = f.settler.MarkRefunded(context.Background(), guardian1, []canteen.CancellationID{"x"})
	assert.ErrorIs(t, err, canteen.ErrForbidden)

	_, err = f.settler.GeneratePayments(context.Background(), guardian1, []canteen.CancellationID{"x"})
	assert.ErrorIs(t, err, canteen.ErrForbidden)
}

func TestSettlements_GroupFilter(t *testing.T) {
	// GIVEN: E has no group, C is in grp-sun, both have cancellations
	// WHEN: Filtering settlements by grp-sun
	// THEN: Only C's entry survives

	f := newSettleFixture(t)
	cancelLunch(t, f.fixture, guardian1, "child-c", june(10))
	cancelLunch(t, f.fixture, guardian1, "child-e", june(10))

	report, err := f.settler.List(context.Background(), manager, canteen.SettlementFilter{GroupID: "grp-sun"})
	require.NoError(t, err)

	require.Len(t, report.Settlements, 1)
	assert.Equal(t, canteen.ChildID("child-c"), report.Settlements[0].Child.ID)
}

func TestSettlements_OnlyUnrefunded(t *testing.T) {
	f := newSettleFixture(t)
	first := cancelLunch(t, f.fixture, guardian1, "child-c", june(10))
	second := cancelLunch(t, f.fixture, guardian1, "child-c", june(11))

	_, err := f.settler.MarkRefunded(context.Background(), manager, []canteen.CancellationID{first.ID})
	require.NoError(t, err)

	report, err := f.settler.List(context.Background(), manager, canteen.SettlementFilter{OnlyUnrefunded: true})
	require.NoError(t, err)

	require.Len(t, report.Settlements, 1)
	require.Len(t, report.Settlements[0].Cancellations, 1)
	assert.Equal(t, second.ID, report.Settlements[0].Cancellations[0].ID)
	assert.True(t, report.Settlements[0].TotalRefunded.IsZero())
}

// =============================================================================
// MARK REFUNDED
// =============================================================================

func TestMarkRefunded_CountsOnlyFlips(t *testing.T) {
	// GIVEN: Two records, one already refunded, plus an unknown id
	// WHEN: Marking all three refunded
	// THEN: Count is 1; repeating the call counts 0

	f := newSettleFixture(t)
	first := cancelLunch(t, f.fixture, guardian1, "child-c", june(10))
	second := cancelLunch(t, f.fixture, guardian1, "child-c", june(11))

	count, err := f.settler.MarkRefunded(context.Background(), manager, []canteen.CancellationID{first.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ids := []canteen.CancellationID{first.ID, second.ID, "no-such-id"}
	count, err = f.settler.MarkRefunded(context.Background(), manager, ids)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = f.settler.MarkRefunded(context.Background(), manager, ids)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// =============================================================================
// GENERATE REVERSING PAYMENTS
// =============================================================================

func TestGeneratePayments_OneReversingEntryPerChild(t *testing.T) {
	// GIVEN: C has two unrefunded cancellations, D one
	// WHEN: Generating payments for all three ids
	// THEN: Two negative paid entries, all three records marked refunded

	f := newSettleFixture(t)
	c1 := cancelLunch(t, f.fixture, guardian1, "child-c", june(10))
	c2 := cancelLunch(t, f.fixture, guardian1, "child-c", june(11))
	d1 := cancelLunch(t, f.fixture, guardian2, "child-d", june(12))

	payments, err := f.settler.GeneratePayments(context.Background(), manager,
		[]canteen.CancellationID{c1.ID, c2.ID, d1.ID})
	require.NoError(t, err)

	require.Len(t, payments, 2)
	assert.Equal(t, canteen.ChildID("child-c"), payments[0].ChildID)
	assert.True(t, payments[0].Amount.Equal(mustDecimal("-25.00")),
		"amount %s should be -25.00", payments[0].Amount)
	assert.Equal(t, "Meal refund: 2 cancelled meal(s)", payments[0].Description)
	assert.Equal(t, canteen.StatusPaid, payments[0].Status)
	require.NotNil(t, payments[0].PaidDate)

	assert.True(t, payments[1].Amount.Equal(mustDecimal("-12.50")))

	for _, id := range []canteen.CancellationID{c1.ID, c2.ID, d1.ID} {
		rec, err := f.store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, rec.Refunded, "record %s should be refunded", id)
	}
	assert.Len(t, f.payments.Payments(), 2)
}

func TestGeneratePayments_SingleMeal(t *testing.T) {
	// The single-lunch case: 12.50 cancelled produces a -12.50 paid entry.
	f := newSettleFixture(t)
	c := cancelLunch(t, f.fixture, guardian1, "child-c", june(10))

	payments, err := f.settler.GeneratePayments(context.Background(), manager,
		[]canteen.CancellationID{c.ID})
	require.NoError(t, err)

	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.Equal(mustDecimal("-12.50")))
	assert.Equal(t, "Meal refund: 1 cancelled meal(s)", payments[0].Description)
}

func TestGeneratePayments_NoDoubleReimbursement(t *testing.T) {
	// GIVEN: A payment already generated for a record
	// WHEN: Generating payments for the same id again
	// THEN: No new payment is created

	f := newSettleFixture(t)
	c := cancelLunch(t, f.fixture, guardian1, "child-c", june(10))
	ids := []canteen.CancellationID{c.ID}

	first, err := f.settler.GeneratePayments(context.Background(), manager, ids)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := f.settler.GeneratePayments(context.Background(), manager, ids)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, f.payments.Payments(), 1)
}

func TestGeneratePayments_ZeroValueSkipped(t *testing.T) {
	// GIVEN: E has no group, so E's cancellation resolves to zero
	// WHEN: Generating payments for it
	// THEN: No payment entry, and the record stays unrefunded

	f := newSettleFixture(t)
	e := cancelLunch(t, f.fixture, guardian1, "child-e", june(10))

	payments, err := f.settler.GeneratePayments(context.Background(), manager,
		[]canteen.CancellationID{e.ID})
	require.NoError(t, err)
	assert.Empty(t, payments)

	rec, err := f.store.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.False(t, rec.Refunded)
}

func TestGeneratePayments_SkipsUnknownIDs(t *testing.T) {
	// Bulk actions process the valid subset instead of failing wholesale.
	f := newSettleFixture(t)
	c := cancelLunch(t, f.fixture, guardian1, "child-c", june(10))

	payments, err := f.settler.GeneratePayments(context.Background(), manager,
		[]canteen.CancellationID{"no-such-id", c.ID})
	require.NoError(t, err)

	require.Len(t, payments, 1)
	assert.Equal(t, "Meal refund: 1 cancelled meal(s)", payments[0].Description)
}
