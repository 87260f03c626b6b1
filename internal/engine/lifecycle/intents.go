package lifecycle

import (
	"fmt"
	"strconv"
	"strings"

	"referral-workers/internal/engine/capacity"
	"referral-workers/internal/engine/notify"
	"referral-workers/internal/models"
)

func displayBuyer(r *models.Referral) string {
	if r.BuyerName != "" {
		return r.BuyerName
	}
	return "buyer " + r.BuyerID
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func buyerFields(r *models.Referral) map[string]string {
	fields := map[string]string{
		"buyerId":              r.BuyerID,
		"buyerState":           r.BuyerState,
		"intentScore":          strconv.Itoa(r.IntentScore),
		"intentClassification": r.IntentClassification,
		"status":               string(r.Status),
	}
	if r.OrderType != "" {
		fields["orderType"] = r.OrderType
	}
	if r.BudgetRange != "" {
		fields["budgetRange"] = r.BudgetRange
	}
	return fields
}

// nextStatuses names the moves the supplier can make from r's status.
func nextStatuses(r *models.Referral, fields map[string]string) {
	next := Next(r.Status)
	if len(next) == 0 {
		return
	}
	names := make([]string, len(next))
	for i, s := range next {
		names[i] = string(s)
	}
	fields["nextStatuses"] = strings.Join(names, ", ")
}

func newLeadIntent(r *models.Referral) notify.Intent {
	fields := buyerFields(r)
	actions := []notify.Action{notify.ActionApprove, notify.ActionReassign, notify.ActionViewDetails, notify.ActionReject}
	summary := fmt.Sprintf("New %s-intent lead: %s (%s)", r.IntentClassification, displayBuyer(r), r.BuyerState)

	if r.SuggestedSupplier != "" {
		fields["suggestedSupplier"] = r.SuggestedSupplier
	} else {
		// nothing to approve until someone picks a supplier
		actions = []notify.Action{notify.ActionReassign, notify.ActionViewDetails, notify.ActionReject}
		summary += ", no eligible supplier"
	}

	return notify.Intent{
		Kind:             notify.KindNewLead,
		ReferralID:       r.ID,
		Summary:          summary,
		Fields:           fields,
		SuggestedActions: actions,
	}
}

func approvedIntent(r *models.Referral, sup *models.Supplier, res *capacity.Reservation) notify.Intent {
	fields := buyerFields(r)
	fields["assignedSupplier"] = sup.ID
	fields["supplierLoad"] = fmt.Sprintf("%d/%d", res.Load.Current, res.Load.Max)
	if res.OverCapacity() {
		fields["capacityAdvisory"] = "supplier is over its maximum active referrals"
	}
	nextStatuses(r, fields)

	return notify.Intent{
		Kind:             notify.KindApproved,
		ReferralID:       r.ID,
		Summary:          fmt.Sprintf("Intro sent: %s introduced to %s", displayBuyer(r), sup.Name),
		Fields:           fields,
		SuggestedActions: []notify.Action{notify.ActionViewDetails},
	}
}

func statusIntent(r *models.Referral, from models.ReferralStatus, summary string) notify.Intent {
	fields := buyerFields(r)
	fields["previousStatus"] = string(from)
	nextStatuses(r, fields)
	return notify.Intent{
		Kind:             notify.KindStatusChanged,
		ReferralID:       r.ID,
		Summary:          summary,
		Fields:           fields,
		SuggestedActions: []notify.Action{notify.ActionViewDetails},
	}
}

func closedIntent(r *models.Referral) notify.Intent {
	fields := buyerFields(r)
	fields["supplier"] = r.Holder()
	summary := fmt.Sprintf("%s closed lost", displayBuyer(r))
	if r.Status == models.StatusClosedWon {
		fields["saleAmount"] = money(r.SaleAmount)
		fields["commissionDue"] = money(r.CommissionDue)
		summary = fmt.Sprintf("%s closed won at $%s, commission $%s", displayBuyer(r), money(r.SaleAmount), money(r.CommissionDue))
	}
	return notify.Intent{
		Kind:             notify.KindClosed,
		ReferralID:       r.ID,
		Summary:          summary,
		Fields:           fields,
		SuggestedActions: []notify.Action{notify.ActionViewDetails},
	}
}
