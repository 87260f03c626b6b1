// Package lifecycle drives referrals from PendingApproval to a terminal
// status. It is the only writer of referral status and financial fields and
// calls the capacity ledger on approval and close.
package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/metrics"
	"referral-workers/internal/engine/capacity"
	"referral-workers/internal/engine/notify"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

type Machine struct {
	store    recordstore.Store
	ledger   *capacity.Ledger
	journal  capacity.Journal
	notifier notify.Dispatcher
	rate     decimal.Decimal
	now      func() time.Time
	logger   logger.Logger
}

func NewMachine(store recordstore.Store, ledger *capacity.Ledger, journal capacity.Journal, notifier notify.Dispatcher, commissionRate float64, log logger.Logger) *Machine {
	if journal == nil {
		journal = capacity.NopJournal{}
	}
	if notifier == nil {
		notifier = notify.NopDispatcher{}
	}
	return &Machine{
		store:    store,
		ledger:   ledger,
		journal:  journal,
		notifier: notifier,
		rate:     decimal.NewFromFloat(commissionRate),
		now:      time.Now,
		logger:   log,
	}
}

// CreateRequest carries the buyer snapshot copied onto a new referral.
type CreateRequest struct {
	BuyerID              string
	SuggestedSupplier    string
	BuyerName            string
	BuyerEmail           string
	BuyerPhone           string
	BuyerState           string
	OrderType            string
	BudgetRange          string
	IntentScore          int
	IntentClassification string
	Notes                string
}

// ApproveResult carries the capacity outcome of an approval. A non-nil
// Reservation.Advisory means the supplier is now over its maximum.
type ApproveResult struct {
	Referral    *models.Referral      `json:"referral"`
	Reservation *capacity.Reservation `json:"reservation"`
}

// TransitionRequest is a supplier-side move. SaleAmount is required for
// ClosedWon.
type TransitionRequest struct {
	ReferralID string
	To         models.ReferralStatus
	SaleAmount *float64
	Notes      string
}

func (m *Machine) timestamp() string {
	return m.now().UTC().Format(time.RFC3339)
}

// Get loads and validates a referral.
func (m *Machine) Get(ctx context.Context, id string) (*models.Referral, error) {
	rec, err := m.store.Get(ctx, models.TableReferrals, id)
	if err != nil {
		return nil, err
	}
	return decodeReferral(rec)
}

func decodeReferral(rec *recordstore.Record) (*models.Referral, error) {
	ref, err := models.DecodeReferral(rec.ID, rec.Fields)
	if err != nil {
		return nil, errors.NewInvalidRecordError(models.TableReferrals, rec.ID, err.Error())
	}
	return ref, nil
}

func (m *Machine) write(ctx context.Context, id string, fields map[string]interface{}) (*models.Referral, error) {
	fields["updatedAt"] = m.timestamp()
	rec, err := m.store.Update(ctx, models.TableReferrals, id, fields)
	if err != nil {
		return nil, err
	}
	return decodeReferral(rec)
}

// Create writes a PendingApproval referral. An empty SuggestedSupplier is a
// valid no-match lead that an admin must reassign.
func (m *Machine) Create(ctx context.Context, req CreateRequest) (*models.Referral, error) {
	if req.BuyerID == "" {
		return nil, errors.NewValidationError("buyerId is required")
	}

	now := m.timestamp()
	ref := &models.Referral{
		BuyerID:              req.BuyerID,
		SuggestedSupplier:    req.SuggestedSupplier,
		Status:               models.StatusPendingApproval,
		BuyerName:            req.BuyerName,
		BuyerEmail:           req.BuyerEmail,
		BuyerPhone:           req.BuyerPhone,
		BuyerState:           models.NormalizeState(req.BuyerState),
		OrderType:            req.OrderType,
		BudgetRange:          req.BudgetRange,
		IntentScore:          req.IntentScore,
		IntentClassification: req.IntentClassification,
		BuyerNotes:           req.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	fields, err := ref.Fields()
	if err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	rec, err := m.store.Create(ctx, models.TableReferrals, fields)
	if err != nil {
		return nil, err
	}
	created, err := decodeReferral(rec)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Referral created", map[string]interface{}{
		"referralId":        created.ID,
		"buyerId":           created.BuyerID,
		"suggestedSupplier": created.SuggestedSupplier,
	})
	m.emit(ctx, newLeadIntent(created))
	return created, nil
}

// Approve assigns the referral and reserves a slot on the assigned supplier.
// override, when set, replaces the suggested supplier.
func (m *Machine) Approve(ctx context.Context, actor Actor, referralID, override string) (*ApproveResult, error) {
	if err := requireAdmin(actor, "approve"); err != nil {
		return nil, err
	}
	ref, err := m.Get(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.Status != models.StatusPendingApproval {
		return nil, errors.NewInvalidTransitionError(string(ref.Status), string(models.StatusApproved))
	}

	supplierID := override
	if supplierID == "" {
		supplierID = ref.SuggestedSupplier
	}
	if supplierID == "" {
		return nil, errors.NewValidationError("no supplier to assign: referral has no suggested supplier and no override was given")
	}
	sup, err := m.ledger.Supplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}

	res, err := m.reserve(ctx, ref.ID, sup)
	if err != nil {
		return nil, err
	}

	now := m.timestamp()
	updated, err := m.write(ctx, ref.ID, map[string]interface{}{
		models.FieldStatus:           string(models.StatusIntroSent),
		models.FieldAssignedSupplier: supplierID,
		"approvedAt":                 now,
		"introSentAt":                now,
	})
	if err != nil {
		// the journal entry stays behind for a retry or the sweep
		return nil, err
	}
	m.clearJournal(ctx, ref.ID, capacity.OpReserve)

	metrics.ReferralTransitions.WithLabelValues(string(models.StatusPendingApproval), string(models.StatusApproved)).Inc()
	metrics.ReferralTransitions.WithLabelValues(string(models.StatusApproved), string(models.StatusIntroSent)).Inc()
	m.logger.Info("Referral approved", map[string]interface{}{
		"referralId":   ref.ID,
		"supplierId":   supplierID,
		"actor":        actor.String(),
		"current":      res.Load.Current,
		"max":          res.Load.Max,
		"overCapacity": res.OverCapacity(),
	})
	m.emit(ctx, approvedIntent(updated, sup, res))
	return &ApproveResult{Referral: updated, Reservation: res}, nil
}

// reserve takes the slot for an approval, guarded by the journal. A pending
// reservation left by an earlier failed attempt on the same supplier is
// reused instead of taking a second slot.
func (m *Machine) reserve(ctx context.Context, referralID string, sup *models.Supplier) (*capacity.Reservation, error) {
	pending, err := m.journal.Lookup(ctx, referralID, capacity.OpReserve)
	if err != nil {
		m.logJournalError("lookup", referralID, err)
		pending = nil
	}

	if pending != nil && pending.SupplierID == sup.ID {
		m.logger.Info("Reusing pending reservation", map[string]interface{}{
			"referralId": referralID,
			"supplierId": sup.ID,
		})
		load := m.ledger.LoadOf(sup)
		res := &capacity.Reservation{SupplierID: sup.ID, Load: load}
		if load.Current > load.Max {
			res.Advisory = errors.NewCapacityExceededAdvisory(sup.ID, load.Current, load.Max)
		}
		return res, nil
	}

	if pending != nil {
		if _, _, err := m.ledger.Release(ctx, pending.SupplierID); err != nil {
			return nil, err
		}
		m.clearJournal(ctx, referralID, capacity.OpReserve)
	}

	if err := m.journal.Record(ctx, capacity.Entry{
		ReferralID: referralID,
		SupplierID: sup.ID,
		Op:         capacity.OpReserve,
		RecordedAt: m.now().UTC(),
	}); err != nil {
		m.logJournalError("record", referralID, err)
	}

	res, err := m.ledger.Reserve(ctx, sup.ID)
	if err != nil {
		m.clearJournal(ctx, referralID, capacity.OpReserve)
		return nil, err
	}
	return res, nil
}

// Reject closes a pending referral without touching capacity.
func (m *Machine) Reject(ctx context.Context, actor Actor, referralID, reason string) (*models.Referral, error) {
	if err := requireAdmin(actor, "reject"); err != nil {
		return nil, err
	}
	ref, err := m.Get(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.Status != models.StatusPendingApproval {
		return nil, errors.NewInvalidTransitionError(string(ref.Status), string(models.StatusRejected))
	}

	updated, err := m.write(ctx, ref.ID, map[string]interface{}{
		models.FieldStatus: string(models.StatusRejected),
		"rejectionReason":  reason,
	})
	if err != nil {
		return nil, err
	}

	metrics.ReferralTransitions.WithLabelValues(string(ref.Status), string(models.StatusRejected)).Inc()
	m.logger.Info("Referral rejected", map[string]interface{}{
		"referralId": ref.ID,
		"actor":      actor.String(),
		"reason":     reason,
	})
	m.emit(ctx, statusIntent(updated, ref.Status, "Referral rejected"))
	return updated, nil
}

// Reassign points a pending referral at a different supplier.
func (m *Machine) Reassign(ctx context.Context, actor Actor, referralID, supplierID string) (*models.Referral, error) {
	if err := requireAdmin(actor, "reassign"); err != nil {
		return nil, err
	}
	if supplierID == "" {
		return nil, errors.NewValidationError("supplierId is required")
	}
	ref, err := m.Get(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.Status != models.StatusPendingApproval {
		return nil, errors.NewInvalidTransitionError(string(ref.Status), string(models.StatusPendingApproval))
	}
	sup, err := m.ledger.Supplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}

	updated, err := m.write(ctx, ref.ID, map[string]interface{}{
		models.FieldSuggestedSupplier: sup.ID,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Referral reassigned", map[string]interface{}{
		"referralId": ref.ID,
		"from":       ref.SuggestedSupplier,
		"to":         sup.ID,
		"actor":      actor.String(),
	})
	intent := newLeadIntent(updated)
	intent.Kind = notify.KindStatusChanged
	intent.Summary = fmt.Sprintf("Referral for %s reassigned to %s", displayBuyer(updated), sup.Name)
	m.emit(ctx, intent)
	return updated, nil
}

// Transition applies a supplier-side edge. Closing releases the supplier's
// slot and records the sale and commission.
func (m *Machine) Transition(ctx context.Context, actor Actor, req TransitionRequest) (*models.Referral, error) {
	ref, err := m.Get(ctx, req.ReferralID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSupplierEdge(actor, ref); err != nil {
		return nil, err
	}
	if !CanTransition(ref.Status, req.To) {
		return nil, errors.NewInvalidTransitionError(string(ref.Status), string(req.To))
	}

	fields := map[string]interface{}{
		models.FieldStatus: string(req.To),
	}
	if req.Notes != "" {
		fields["notes"] = req.Notes
	}

	if !req.To.Terminal() {
		updated, err := m.write(ctx, ref.ID, fields)
		if err != nil {
			return nil, err
		}
		m.transitioned(ctx, actor, ref, updated)
		return updated, nil
	}

	sale, commission, err := m.settle(req)
	if err != nil {
		return nil, err
	}
	fields["saleAmount"] = sale.InexactFloat64()
	fields["commissionDue"] = commission.InexactFloat64()
	fields["closedAt"] = m.timestamp()

	updated, err := m.close(ctx, ref, fields)
	if err != nil {
		return nil, err
	}
	if commission.IsPositive() {
		metrics.CommissionDue.Add(commission.InexactFloat64())
	}
	m.transitioned(ctx, actor, ref, updated)
	return updated, nil
}

// settle validates the sale amount for a close and computes commission.
func (m *Machine) settle(req TransitionRequest) (decimal.Decimal, decimal.Decimal, error) {
	if req.SaleAmount != nil && *req.SaleAmount < 0 {
		return decimal.Zero, decimal.Zero, errors.NewValidationError("saleAmount must not be negative")
	}

	switch req.To {
	case models.StatusClosedWon:
		if req.SaleAmount == nil || *req.SaleAmount <= 0 {
			return decimal.Zero, decimal.Zero, errors.NewValidationError("closing as won requires a positive saleAmount")
		}
		return decimal.NewFromFloat(*req.SaleAmount), Commission(*req.SaleAmount, m.rate), nil
	default:
		if req.SaleAmount != nil && *req.SaleAmount > 0 {
			return decimal.Zero, decimal.Zero, errors.NewValidationError("a lost referral cannot carry a saleAmount")
		}
		return decimal.Zero, decimal.Zero, nil
	}
}

// close releases the holder's slot and then writes the terminal status,
// guarded by the journal. A pending release left by an earlier failed
// attempt means the slot is already free, so only the write is retried.
func (m *Machine) close(ctx context.Context, ref *models.Referral, fields map[string]interface{}) (*models.Referral, error) {
	holder := ref.Holder()

	pending, err := m.journal.Lookup(ctx, ref.ID, capacity.OpRelease)
	if err != nil {
		m.logJournalError("lookup", ref.ID, err)
		pending = nil
	}
	if pending != nil && pending.SupplierID == holder {
		m.logger.Info("Reusing pending release", map[string]interface{}{
			"referralId": ref.ID,
			"supplierId": holder,
		})
		updated, err := m.write(ctx, ref.ID, fields)
		if err != nil {
			return nil, err
		}
		m.clearJournal(ctx, ref.ID, capacity.OpRelease)
		return updated, nil
	}

	if err := m.journal.Record(ctx, capacity.Entry{
		ReferralID: ref.ID,
		SupplierID: holder,
		Op:         capacity.OpRelease,
		RecordedAt: m.now().UTC(),
	}); err != nil {
		m.logJournalError("record", ref.ID, err)
	}

	_, changed, err := m.ledger.Release(ctx, holder)
	if err != nil {
		m.clearJournal(ctx, ref.ID, capacity.OpRelease)
		return nil, err
	}
	if !changed {
		// nothing to undo if the write below fails
		m.clearJournal(ctx, ref.ID, capacity.OpRelease)
	}

	updated, err := m.write(ctx, ref.ID, fields)
	if err != nil {
		return nil, err
	}
	if changed {
		m.clearJournal(ctx, ref.ID, capacity.OpRelease)
	}
	return updated, nil
}

// MarkCommissionPaid records external settlement of a won referral. Marking
// an already paid referral is a no-op.
func (m *Machine) MarkCommissionPaid(ctx context.Context, actor Actor, referralID string) (*models.Referral, error) {
	if err := requireAdmin(actor, "mark commission paid"); err != nil {
		return nil, err
	}
	ref, err := m.Get(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if ref.Status != models.StatusClosedWon || ref.CommissionDue <= 0 {
		return nil, errors.NewValidationError("only won referrals with commission due can be marked paid").
			WithMetadata("status", string(ref.Status))
	}
	if ref.CommissionPaid {
		return ref, nil
	}

	updated, err := m.write(ctx, ref.ID, map[string]interface{}{
		"commissionPaid": true,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Commission marked paid", map[string]interface{}{
		"referralId":    ref.ID,
		"commissionDue": updated.CommissionDue,
		"actor":         actor.String(),
	})
	m.emit(ctx, notify.Intent{
		Kind:       notify.KindStatusChanged,
		ReferralID: updated.ID,
		Summary:    fmt.Sprintf("Commission of $%s paid for %s", money(updated.CommissionDue), displayBuyer(updated)),
		Fields: map[string]string{
			"commissionDue":  money(updated.CommissionDue),
			"commissionPaid": strconv.FormatBool(true),
		},
		SuggestedActions: []notify.Action{notify.ActionViewDetails},
	})
	return updated, nil
}

func (m *Machine) transitioned(ctx context.Context, actor Actor, before, after *models.Referral) {
	metrics.ReferralTransitions.WithLabelValues(string(before.Status), string(after.Status)).Inc()
	m.logger.Info("Referral transitioned", map[string]interface{}{
		"referralId":    after.ID,
		"from":          string(before.Status),
		"to":            string(after.Status),
		"actor":         actor.String(),
		"saleAmount":    after.SaleAmount,
		"commissionDue": after.CommissionDue,
	})

	if after.Status.Terminal() {
		m.emit(ctx, closedIntent(after))
		return
	}
	m.emit(ctx, statusIntent(after, before.Status, "Referral moved to "+string(after.Status)))
}

// emit never fails the caller.
func (m *Machine) emit(ctx context.Context, intent notify.Intent) {
	intent.OccurredAt = m.now().UTC()
	if err := m.notifier.Dispatch(ctx, intent); err != nil {
		m.logger.Warn("Notification intent not delivered", map[string]interface{}{
			"kind":       string(intent.Kind),
			"referralId": intent.ReferralID,
			"error":      err.Error(),
		})
	}
}

func (m *Machine) clearJournal(ctx context.Context, referralID string, op capacity.Op) {
	if err := m.journal.Clear(ctx, referralID, op); err != nil {
		m.logJournalError("clear", referralID, err)
	}
}

func (m *Machine) logJournalError(action, referralID string, err error) {
	m.logger.Warn("Reservation journal "+action+" failed", map[string]interface{}{
		"referralId": referralID,
		"error":      err.Error(),
	})
}
