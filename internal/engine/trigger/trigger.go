// Package trigger turns a buyer profile update into a pending referral.
package trigger

import (
	"context"

	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/engine/lifecycle"
	"referral-workers/internal/engine/matching"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

// Request is the buyer snapshot a match is triggered for.
type Request struct {
	BuyerID              string `json:"buyerId"`
	BuyerState           string `json:"buyerState"`
	BuyerName            string `json:"buyerName,omitempty"`
	BuyerEmail           string `json:"buyerEmail,omitempty"`
	BuyerPhone           string `json:"buyerPhone,omitempty"`
	OrderType            string `json:"orderType,omitempty"`
	BudgetRange          string `json:"budgetRange,omitempty"`
	IntentScore          int    `json:"intentScore"`
	IntentClassification string `json:"intentClassification,omitempty"`
	Notes                string `json:"notes,omitempty"`
}

// Result names the referral created. SupplierID is empty when no supplier
// was eligible; the referral still exists and waits for an admin.
type Result struct {
	ReferralID string `json:"referralId"`
	SupplierID string `json:"supplierId"`
	Matched    bool   `json:"matched"`
}

type Trigger struct {
	store    recordstore.Store
	selector *matching.Selector
	machine  *lifecycle.Machine
	logger   logger.Logger
}

func New(store recordstore.Store, selector *matching.Selector, machine *lifecycle.Machine, log logger.Logger) *Trigger {
	return &Trigger{store: store, selector: selector, machine: machine, logger: log}
}

// TriggerMatch selects a supplier and creates the PendingApproval referral.
// The buyer must exist; fields missing from the request are taken from the
// stored buyer record.
func (t *Trigger) TriggerMatch(ctx context.Context, req Request) (*Result, error) {
	if req.BuyerID == "" {
		return nil, errors.NewValidationError("buyerId is required")
	}

	buyer, err := t.buyer(ctx, req.BuyerID)
	if err != nil {
		return nil, err
	}
	req = withBuyer(req, buyer)

	match, err := t.selector.Select(ctx, matching.Criteria{
		BuyerState:  req.BuyerState,
		OrderType:   req.OrderType,
		BudgetRange: req.BudgetRange,
	})
	if err != nil {
		return nil, err
	}

	ref, err := t.machine.Create(ctx, lifecycle.CreateRequest{
		BuyerID:              req.BuyerID,
		SuggestedSupplier:    match.SupplierID,
		BuyerName:            req.BuyerName,
		BuyerEmail:           req.BuyerEmail,
		BuyerPhone:           req.BuyerPhone,
		BuyerState:           req.BuyerState,
		OrderType:            req.OrderType,
		BudgetRange:          req.BudgetRange,
		IntentScore:          req.IntentScore,
		IntentClassification: req.IntentClassification,
		Notes:                req.Notes,
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("Match triggered", map[string]interface{}{
		"buyerId":    req.BuyerID,
		"referralId": ref.ID,
		"supplierId": match.SupplierID,
		"matched":    match.Found,
	})
	return &Result{ReferralID: ref.ID, SupplierID: match.SupplierID, Matched: match.Found}, nil
}

func (t *Trigger) buyer(ctx context.Context, id string) (*models.Buyer, error) {
	rec, err := t.store.Get(ctx, models.TableBuyers, id)
	if err != nil {
		return nil, err
	}
	b, err := models.DecodeBuyer(rec.ID, rec.Fields)
	if err != nil {
		return nil, errors.NewInvalidRecordError(models.TableBuyers, rec.ID, err.Error())
	}
	return b, nil
}

func withBuyer(req Request, b *models.Buyer) Request {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&req.BuyerState, b.State)
	fill(&req.BuyerName, b.Name)
	fill(&req.BuyerEmail, b.Email)
	fill(&req.BuyerPhone, b.Phone)
	fill(&req.OrderType, b.OrderType)
	fill(&req.BudgetRange, b.BudgetRange)
	fill(&req.Notes, b.Notes)
	if req.IntentScore == 0 && req.IntentClassification == "" {
		req.IntentScore = b.IntentScore
		req.IntentClassification = b.IntentClassification
	}
	return req
}
