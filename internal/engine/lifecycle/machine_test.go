package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/engine/capacity"
	"referral-workers/internal/engine/notify"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

// ==========================
// Helpers
// ==========================

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// flakyStore fails the next n referral updates.
type flakyStore struct {
	*recordstore.MemoryStore
	failReferralWrites int
}

func (f *flakyStore) Update(ctx context.Context, table, id string, fields map[string]interface{}) (*recordstore.Record, error) {
	if table == models.TableReferrals && f.failReferralWrites > 0 {
		f.failReferralWrites--
		return nil, errors.NewStoreWriteFailedError(table, fmt.Errorf("connection reset"))
	}
	return f.MemoryStore.Update(ctx, table, id, fields)
}

type fixture struct {
	machine  *Machine
	store    *flakyStore
	ledger   *capacity.Ledger
	journal  capacity.Journal
	recorder *notify.Recorder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &flakyStore{MemoryStore: recordstore.NewMemoryStore()}
	log := logger.NewTestLogger(t)
	ledger := capacity.NewLedger(store, models.DefaultSupplierDefaults, log)
	journal := capacity.NewRedisJournal(client, "")
	rec := &notify.Recorder{}

	m := NewMachine(store, ledger, journal, rec, 0.10, log)
	m.now = func() time.Time { return fixedNow }
	return &fixture{machine: m, store: store, ledger: ledger, journal: journal, recorder: rec}
}

func (f *fixture) supplier(t *testing.T, id string, current, max int) {
	t.Helper()
	_, err := f.store.Put(context.Background(), models.TableSuppliers, id, map[string]interface{}{
		"name":                             "Ranch " + id,
		"homeState":                        "TX",
		models.FieldCertified:              true,
		models.FieldActiveStatus:           models.SupplierActive,
		models.FieldCurrentActiveReferrals: current,
		models.FieldMaxActiveReferrals:     max,
	})
	require.NoError(t, err)
}

func (f *fixture) load(t *testing.T, id string) capacity.Load {
	t.Helper()
	s, err := f.ledger.Supplier(context.Background(), id)
	require.NoError(t, err)
	return f.ledger.LoadOf(s)
}

func (f *fixture) pending(t *testing.T, suggested string) *models.Referral {
	t.Helper()
	ref, err := f.machine.Create(context.Background(), CreateRequest{
		BuyerID:              "buyer-1",
		SuggestedSupplier:    suggested,
		BuyerName:            "Jane Doe",
		BuyerState:           "tx",
		OrderType:            models.OrderWhole,
		BudgetRange:          "$2000+",
		IntentScore:          85,
		IntentClassification: "High",
	})
	require.NoError(t, err)
	return ref
}

// introduced returns a referral approved onto sup.
func (f *fixture) introduced(t *testing.T, sup string) *models.Referral {
	t.Helper()
	ref := f.pending(t, sup)
	res, err := f.machine.Approve(context.Background(), Admin("admin-1"), ref.ID, "")
	require.NoError(t, err)
	return res.Referral
}

func (f *fixture) status(t *testing.T, id string) models.ReferralStatus {
	t.Helper()
	ref, err := f.machine.Get(context.Background(), id)
	require.NoError(t, err)
	return ref.Status
}

func amount(v float64) *float64 { return &v }

// ==========================
// Create
// ==========================

func TestCreate_PendingWithSnapshot(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)

	ref := f.pending(t, "sup-1")

	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, models.StatusPendingApproval, ref.Status)
	assert.Equal(t, "TX", ref.BuyerState)
	assert.Equal(t, "Jane Doe", ref.BuyerName)
	assert.Equal(t, 85, ref.IntentScore)
	assert.Empty(t, ref.AssignedSupplier)
	assert.Equal(t, fixedNow.Format(time.RFC3339), ref.CreatedAt)

	intents := f.recorder.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, notify.KindNewLead, intents[0].Kind)
	assert.Equal(t, ref.ID, intents[0].ReferralID)
	assert.Equal(t, []notify.Action{notify.ActionApprove, notify.ActionReassign, notify.ActionViewDetails, notify.ActionReject}, intents[0].SuggestedActions)

	// creating a lead never touches capacity
	assert.Equal(t, 0, f.load(t, "sup-1").Current)
}

func TestCreate_NoMatchLead(t *testing.T) {
	f := setup(t)

	ref := f.pending(t, "")
	assert.Empty(t, ref.SuggestedSupplier)

	intents := f.recorder.Intents()
	require.Len(t, intents, 1)
	assert.NotContains(t, intents[0].SuggestedActions, notify.ActionApprove)
	assert.Contains(t, intents[0].Summary, "no eligible supplier")
}

func TestCreate_RequiresBuyer(t *testing.T) {
	f := setup(t)

	_, err := f.machine.Create(context.Background(), CreateRequest{SuggestedSupplier: "sup-1"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
}

// ==========================
// Approve
// ==========================

func TestApprove_ReservesAndSendsIntro(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 2, 5)
	ref := f.pending(t, "sup-1")

	res, err := f.machine.Approve(ctx, Admin("admin-1"), ref.ID, "")
	require.NoError(t, err)

	assert.Equal(t, models.StatusIntroSent, res.Referral.Status)
	assert.Equal(t, "sup-1", res.Referral.AssignedSupplier)
	assert.Equal(t, fixedNow.Format(time.RFC3339), res.Referral.ApprovedAt)
	assert.Equal(t, fixedNow.Format(time.RFC3339), res.Referral.IntroSentAt)
	assert.False(t, res.Reservation.OverCapacity())
	assert.Equal(t, capacity.Load{Current: 3, Max: 5}, f.load(t, "sup-1"))

	assert.Equal(t, []notify.Kind{notify.KindNewLead, notify.KindApproved}, f.recorder.Kinds())

	pending, err := f.journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApprove_Override(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 1, 5)
	f.supplier(t, "sup-2", 1, 5)
	ref := f.pending(t, "sup-1")

	res, err := f.machine.Approve(context.Background(), Admin("admin-1"), ref.ID, "sup-2")
	require.NoError(t, err)

	assert.Equal(t, "sup-2", res.Referral.AssignedSupplier)
	assert.Equal(t, "sup-1", res.Referral.SuggestedSupplier)
	assert.Equal(t, 1, f.load(t, "sup-1").Current)
	assert.Equal(t, 2, f.load(t, "sup-2").Current)
}

func TestApprove_OverCapacityIsAdvisory(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 5, 5)
	ref := f.pending(t, "sup-1")

	res, err := f.machine.Approve(context.Background(), Admin("admin-1"), ref.ID, "")
	require.NoError(t, err)

	require.True(t, res.Reservation.OverCapacity())
	assert.Equal(t, errors.ErrCodeCapacityExceeded, res.Reservation.Advisory.Code)
	assert.Equal(t, models.StatusIntroSent, res.Referral.Status)
	assert.Equal(t, 6, f.load(t, "sup-1").Current)

	intents := f.recorder.Intents()
	assert.Contains(t, intents[len(intents)-1].Fields, "capacityAdvisory")
}

func TestApprove_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		suggested string
		actor     Actor
		override  string
		wantCode  errors.ErrorCode
	}{
		{"supplier cannot approve", "sup-1", Supplier("sup-1"), "", errors.ErrCodeUnauthorized},
		{"no supplier anywhere", "", Admin("admin-1"), "", errors.ErrCodeValidationFailed},
		{"unknown override", "sup-1", Admin("admin-1"), "ghost", errors.ErrCodeResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.supplier(t, "sup-1", 2, 5)
			ref := f.pending(t, tt.suggested)

			_, err := f.machine.Approve(context.Background(), tt.actor, ref.ID, tt.override)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)

			assert.Equal(t, models.StatusPendingApproval, f.status(t, ref.ID))
			assert.Equal(t, 2, f.load(t, "sup-1").Current)
		})
	}
}

func TestApprove_UnknownReferral(t *testing.T) {
	f := setup(t)

	_, err := f.machine.Approve(context.Background(), Admin("admin-1"), "missing", "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeResourceNotFound))
}

func TestApprove_Twice(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	ref := f.introduced(t, "sup-1")

	_, err := f.machine.Approve(context.Background(), Admin("admin-1"), ref.ID, "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 1, f.load(t, "sup-1").Current)
}

func TestApprove_RetryReusesPendingReservation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 2, 5)
	ref := f.pending(t, "sup-1")

	f.store.failReferralWrites = 1
	_, err := f.machine.Approve(ctx, Admin("admin-1"), ref.ID, "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStoreWriteFailed))

	// slot taken, referral untouched, entry left for the retry
	assert.Equal(t, 3, f.load(t, "sup-1").Current)
	assert.Equal(t, models.StatusPendingApproval, f.status(t, ref.ID))
	entry, err := f.journal.Lookup(ctx, ref.ID, capacity.OpReserve)
	require.NoError(t, err)
	require.NotNil(t, entry)

	res, err := f.machine.Approve(ctx, Admin("admin-1"), ref.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusIntroSent, res.Referral.Status)
	assert.Equal(t, 3, f.load(t, "sup-1").Current)

	entry, err = f.journal.Lookup(ctx, ref.ID, capacity.OpReserve)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestApprove_RetryOnOtherSupplierReleasesPending(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 2, 5)
	f.supplier(t, "sup-2", 0, 5)
	ref := f.pending(t, "sup-1")

	f.store.failReferralWrites = 1
	_, err := f.machine.Approve(ctx, Admin("admin-1"), ref.ID, "")
	require.Error(t, err)

	_, err = f.machine.Approve(ctx, Admin("admin-1"), ref.ID, "sup-2")
	require.NoError(t, err)
	assert.Equal(t, 2, f.load(t, "sup-1").Current)
	assert.Equal(t, 1, f.load(t, "sup-2").Current)
}

// ==========================
// Reject / Reassign
// ==========================

func TestReject(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 2, 5)
	ref := f.pending(t, "sup-1")

	got, err := f.machine.Reject(context.Background(), Admin("admin-1"), ref.ID, "duplicate lead")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, "duplicate lead", got.RejectionReason)
	assert.Equal(t, 2, f.load(t, "sup-1").Current)
	assert.Equal(t, []notify.Kind{notify.KindNewLead, notify.KindStatusChanged}, f.recorder.Kinds())

	_, err = f.machine.Reject(context.Background(), Admin("admin-1"), ref.ID, "again")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
}

func TestReject_SupplierUnauthorized(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	ref := f.pending(t, "sup-1")

	_, err := f.machine.Reject(context.Background(), Supplier("sup-1"), ref.ID, "not interested")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	assert.Equal(t, models.StatusPendingApproval, f.status(t, ref.ID))
}

func TestReassign(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	f.supplier(t, "sup-2", 0, 5)
	ref := f.pending(t, "")

	got, err := f.machine.Reassign(context.Background(), Admin("admin-1"), ref.ID, "sup-2")
	require.NoError(t, err)
	assert.Equal(t, "sup-2", got.SuggestedSupplier)
	assert.Equal(t, models.StatusPendingApproval, got.Status)
	assert.Equal(t, 0, f.load(t, "sup-2").Current)

	_, err = f.machine.Reassign(context.Background(), Admin("admin-1"), ref.ID, "ghost")
	assert.True(t, errors.IsCode(err, errors.ErrCodeResourceNotFound))

	res, err := f.machine.Approve(context.Background(), Admin("admin-1"), ref.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "sup-2", res.Referral.AssignedSupplier)

	_, err = f.machine.Reassign(context.Background(), Admin("admin-1"), ref.ID, "sup-1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
}

// ==========================
// Supplier transitions
// ==========================

func TestTransition_Progression(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	ref := f.introduced(t, "sup-1")

	got, err := f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusRancherContacted, Notes: "called Tuesday"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRancherContacted, got.Status)
	assert.Equal(t, "called Tuesday", got.Notes)

	got, err = f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusNegotiation})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNegotiation, got.Status)

	// transitions within the open states keep the slot
	assert.Equal(t, 1, f.load(t, "sup-1").Current)
}

func TestTransition_IntentsListNextStatuses(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	ref := f.introduced(t, "sup-1")

	_, err := f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusRancherContacted})
	require.NoError(t, err)
	_, err = f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedLost})
	require.NoError(t, err)

	intents := f.recorder.Intents()
	require.Len(t, intents, 4)
	assert.Equal(t, notify.KindApproved, intents[1].Kind)
	assert.Equal(t, "RancherContacted, ClosedWon, ClosedLost", intents[1].Fields["nextStatuses"])
	assert.Equal(t, notify.KindStatusChanged, intents[2].Kind)
	assert.Equal(t, "Negotiation, ClosedWon, ClosedLost", intents[2].Fields["nextStatuses"])
	assert.NotContains(t, intents[3].Fields, "nextStatuses")
}

func TestTransition_IllegalEdges(t *testing.T) {
	tests := []struct {
		name string
		path []models.ReferralStatus
		to   models.ReferralStatus
	}{
		{name: "skip rancher contacted", to: models.StatusNegotiation},
		{name: "back to intro", path: []models.ReferralStatus{models.StatusRancherContacted}, to: models.StatusIntroSent},
		{name: "supplier approves", to: models.StatusApproved},
		{name: "after close", path: []models.ReferralStatus{models.StatusClosedLost}, to: models.StatusNegotiation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := setup(t)
			f.supplier(t, "sup-1", 0, 5)
			ref := f.introduced(t, "sup-1")
			for _, step := range tt.path {
				_, err := f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: step})
				require.NoError(t, err)
			}
			before := f.status(t, ref.ID)
			load := f.load(t, "sup-1")

			_, err := f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: tt.to})
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
			assert.Equal(t, before, f.status(t, ref.ID))
			assert.Equal(t, load, f.load(t, "sup-1"))
		})
	}
}

func TestTransition_PendingReferralCannotProgress(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	ref := f.pending(t, "sup-1")

	// the suggested supplier is authorized but the edge does not exist yet
	_, err := f.machine.Transition(context.Background(), Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusRancherContacted})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
}

func TestTransition_Authorization(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	f.supplier(t, "sup-2", 0, 5)
	ref := f.introduced(t, "sup-1")

	_, err := f.machine.Transition(ctx, Supplier("sup-2"), TransitionRequest{ReferralID: ref.ID, To: models.StatusRancherContacted})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
	assert.Equal(t, models.StatusIntroSent, f.status(t, ref.ID))

	_, err = f.machine.Transition(ctx, Actor{Role: "guest"}, TransitionRequest{ReferralID: ref.ID, To: models.StatusRancherContacted})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))

	got, err := f.machine.Transition(ctx, Admin("admin-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusRancherContacted})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRancherContacted, got.Status)
}

func TestTransition_ClosedWonValidation(t *testing.T) {
	tests := []struct {
		name string
		sale *float64
	}{
		{"absent", nil},
		{"zero", amount(0)},
		{"negative", amount(-10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.supplier(t, "sup-1", 2, 5)
			ref := f.introduced(t, "sup-1")

			_, err := f.machine.Transition(context.Background(), Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedWon, SaleAmount: tt.sale})
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))
			assert.Equal(t, models.StatusIntroSent, f.status(t, ref.ID))
			assert.Equal(t, 3, f.load(t, "sup-1").Current)
		})
	}
}

func TestTransition_ClosedWonReleasesAndComputesCommission(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 2, 5)
	ref := f.introduced(t, "sup-1")
	require.Equal(t, 3, f.load(t, "sup-1").Current)

	got, err := f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedWon, SaleAmount: amount(4000)})
	require.NoError(t, err)

	assert.Equal(t, models.StatusClosedWon, got.Status)
	assert.InDelta(t, 4000.0, got.SaleAmount, 1e-9)
	assert.InDelta(t, 400.00, got.CommissionDue, 1e-9)
	assert.False(t, got.CommissionPaid)
	assert.Equal(t, fixedNow.Format(time.RFC3339), got.ClosedAt)
	assert.Equal(t, 2, f.load(t, "sup-1").Current)

	kinds := f.recorder.Kinds()
	assert.Equal(t, notify.KindClosed, kinds[len(kinds)-1])

	pending, err := f.journal.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTransition_ClosedLost(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 2, 5)
	ref := f.introduced(t, "sup-1")

	_, err := f.machine.Transition(context.Background(), Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedLost, SaleAmount: amount(100)})
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))

	got, err := f.machine.Transition(context.Background(), Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedLost})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosedLost, got.Status)
	assert.Zero(t, got.CommissionDue)
	assert.Zero(t, got.SaleAmount)
	assert.Equal(t, 2, f.load(t, "sup-1").Current)
}

func TestTransition_CloseWriteFailureLeavesJournalEntry(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 2, 5)
	ref := f.introduced(t, "sup-1")

	f.store.failReferralWrites = 1
	_, err := f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedWon, SaleAmount: amount(1000)})
	require.Error(t, err)

	assert.Equal(t, 2, f.load(t, "sup-1").Current)
	entry, err := f.journal.Lookup(ctx, ref.ID, capacity.OpRelease)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "sup-1", entry.SupplierID)

	// the sweep puts the slot back since the referral is still open
	sweeper := capacity.NewSweeper(f.ledger, f.journal, f.store, 0, nil, logger.NewTestLogger(t))
	report, err := sweeper.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Compensations, 1)
	assert.Equal(t, capacity.ActionReverted, report.Compensations[0].Action)
	assert.Equal(t, 3, f.load(t, "sup-1").Current)
}

func TestTransition_CloseRetryAfterWriteFailureReleasesOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 2, 5)
	ref := f.introduced(t, "sup-1")
	assert.Equal(t, 3, f.load(t, "sup-1").Current)

	f.store.failReferralWrites = 1
	_, err := f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedWon, SaleAmount: amount(1000)})
	require.Error(t, err)
	assert.Equal(t, 2, f.load(t, "sup-1").Current)

	got, err := f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedWon, SaleAmount: amount(1000)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosedWon, got.Status)
	assert.Equal(t, 2, f.load(t, "sup-1").Current)

	entry, err := f.journal.Lookup(ctx, ref.ID, capacity.OpRelease)
	require.NoError(t, err)
	assert.Nil(t, entry)

	sweeper := capacity.NewSweeper(f.ledger, f.journal, f.store, 0, nil, logger.NewTestLogger(t))
	report, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Compensations)
	assert.Equal(t, 2, f.load(t, "sup-1").Current)
}

func TestTransition_NotifierFailureIsSwallowed(t *testing.T) {
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	f.recorder.Err = fmt.Errorf("chat webhook down")

	ref := f.introduced(t, "sup-1")
	got, err := f.machine.Transition(context.Background(), Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedWon, SaleAmount: amount(2500)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosedWon, got.Status)
	assert.Len(t, f.recorder.Intents(), 3)
}

// ==========================
// Commission
// ==========================

func TestCommission_Rounding(t *testing.T) {
	rate := decimal.NewFromFloat(0.10)
	tests := []struct {
		sale float64
		want string
	}{
		{3333.335, "333.33"},
		{4000, "400"},
		{5000, "500"},
		{1234.56, "123.46"},
		{0.05, "0.01"},
		{19999.99, "2000"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.sale), func(t *testing.T) {
			got := Commission(tt.sale, rate)
			assert.Equal(t, tt.want, got.String())
			assert.True(t, Commission(tt.sale, rate).Equal(got))
		})
	}
}

func TestMarkCommissionPaid(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.supplier(t, "sup-1", 0, 5)
	ref := f.introduced(t, "sup-1")

	_, err := f.machine.MarkCommissionPaid(ctx, Admin("admin-1"), ref.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))

	_, err = f.machine.Transition(ctx, Supplier("sup-1"), TransitionRequest{ReferralID: ref.ID, To: models.StatusClosedWon, SaleAmount: amount(3000)})
	require.NoError(t, err)

	_, err = f.machine.MarkCommissionPaid(ctx, Supplier("sup-1"), ref.ID)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))

	got, err := f.machine.MarkCommissionPaid(ctx, Admin("admin-1"), ref.ID)
	require.NoError(t, err)
	assert.True(t, got.CommissionPaid)
	assert.InDelta(t, 300.0, got.CommissionDue, 1e-9)

	again, err := f.machine.MarkCommissionPaid(ctx, Admin("admin-1"), ref.ID)
	require.NoError(t, err)
	assert.True(t, again.CommissionPaid)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.StatusIntroSent, models.StatusClosedWon))
	assert.False(t, CanTransition(models.StatusPendingApproval, models.StatusIntroSent))
	assert.Empty(t, Next(models.StatusClosedWon))
	assert.Equal(t, []models.ReferralStatus{models.StatusClosedWon, models.StatusClosedLost}, Next(models.StatusNegotiation))
}
