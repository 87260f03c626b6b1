package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-workers/internal/engine/capacity"
	"referral-workers/internal/engine/intent"
	"referral-workers/internal/engine/lifecycle"
	"referral-workers/internal/models"
)

// A Texas buyer ordering a whole animal with the top budget is scored,
// matched to the less loaded of two Texas ranches, approved and closed won.
func TestTexasBuyerEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := setupEngine(t)
	e.supplier(t, "ranch-light", "TX", 2, 5)
	e.supplier(t, "ranch-busy", "TX", 4, 5)
	e.buyer(t, "buyer-tx", map[string]interface{}{"name": "Jane Doe", "state": "TX"})

	score := intent.Score(intent.BaseUpgrade, models.OrderWhole, "$2000+", "")
	require.Equal(t, 85, score.Score)
	require.Equal(t, intent.High, score.Classification)

	res, err := e.trigger.TriggerMatch(ctx, Request{
		BuyerID:              "buyer-tx",
		BuyerState:           "TX",
		BuyerName:            "Jane Doe",
		OrderType:            models.OrderWhole,
		BudgetRange:          "$2000+",
		IntentScore:          score.Score,
		IntentClassification: score.Classification,
	})
	require.NoError(t, err)
	require.Equal(t, "ranch-light", res.SupplierID)

	ref, err := e.machine.Get(ctx, res.ReferralID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingApproval, ref.Status)

	approved, err := e.machine.Approve(ctx, lifecycle.Admin("admin-1"), res.ReferralID, "")
	require.NoError(t, err)
	assert.False(t, approved.Reservation.OverCapacity())

	load, status := e.supplierState(t, "ranch-light")
	assert.Equal(t, capacity.Load{Current: 3, Max: 5}, load)
	assert.Equal(t, models.SupplierActive, status)

	sale := 5000.0
	closed, err := e.machine.Transition(ctx, lifecycle.Supplier("ranch-light"), lifecycle.TransitionRequest{
		ReferralID: res.ReferralID,
		To:         models.StatusClosedWon,
		SaleAmount: &sale,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosedWon, closed.Status)
	assert.InDelta(t, 500.00, closed.CommissionDue, 1e-9)

	load, status = e.supplierState(t, "ranch-light")
	assert.Equal(t, capacity.Load{Current: 2, Max: 5}, load)
	assert.Equal(t, models.SupplierActive, status)

	// the busy ranch was never touched
	load, _ = e.supplierState(t, "ranch-busy")
	assert.Equal(t, capacity.Load{Current: 4, Max: 5}, load)
}
