package models

import "fmt"

// ReferralStatus is a node of the referral lifecycle.
type ReferralStatus string

const (
	StatusPendingApproval  ReferralStatus = "PendingApproval"
	StatusApproved         ReferralStatus = "Approved"
	StatusIntroSent        ReferralStatus = "IntroSent"
	StatusRancherContacted ReferralStatus = "RancherContacted"
	StatusNegotiation      ReferralStatus = "Negotiation"
	StatusClosedWon        ReferralStatus = "ClosedWon"
	StatusClosedLost       ReferralStatus = "ClosedLost"
	StatusRejected         ReferralStatus = "Rejected"
)

// Referral attribute names used in queries and partial updates.
const (
	FieldStatus            = "status"
	FieldBuyerID           = "buyerId"
	FieldSuggestedSupplier = "suggestedSupplier"
	FieldAssignedSupplier  = "assignedSupplier"
)

// HoldsSlot reports whether a referral in this status occupies a supplier slot.
func (s ReferralStatus) HoldsSlot() bool {
	switch s {
	case StatusApproved, StatusIntroSent, StatusRancherContacted, StatusNegotiation:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s ReferralStatus) Terminal() bool {
	switch s {
	case StatusClosedWon, StatusClosedLost, StatusRejected:
		return true
	}
	return false
}

func (s ReferralStatus) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusApproved, StatusIntroSent, StatusRancherContacted,
		StatusNegotiation, StatusClosedWon, StatusClosedLost, StatusRejected:
		return true
	}
	return false
}

type Referral struct {
	ID                   string         `json:"id"`
	BuyerID              string         `json:"buyerId"`
	SuggestedSupplier    string         `json:"suggestedSupplier,omitempty"`
	AssignedSupplier     string         `json:"assignedSupplier,omitempty"`
	Status               ReferralStatus `json:"status"`
	BuyerName            string         `json:"buyerName,omitempty"`
	BuyerEmail           string         `json:"buyerEmail,omitempty"`
	BuyerPhone           string         `json:"buyerPhone,omitempty"`
	BuyerState           string         `json:"buyerState,omitempty"`
	OrderType            string         `json:"orderType,omitempty"`
	BudgetRange          string         `json:"budgetRange,omitempty"`
	IntentScore          int            `json:"intentScore"`
	IntentClassification string         `json:"intentClassification,omitempty"`
	BuyerNotes           string         `json:"buyerNotes,omitempty"`
	SaleAmount           float64        `json:"saleAmount"`
	CommissionDue        float64        `json:"commissionDue"`
	CommissionPaid       bool           `json:"commissionPaid"`
	Notes                string         `json:"notes,omitempty"`
	RejectionReason      string         `json:"rejectionReason,omitempty"`
	CreatedAt            string         `json:"createdAt,omitempty"`
	ApprovedAt           string         `json:"approvedAt,omitempty"`
	IntroSentAt          string         `json:"introSentAt,omitempty"`
	ClosedAt             string         `json:"closedAt,omitempty"`
	UpdatedAt            string         `json:"updatedAt,omitempty"`
}

// DecodeReferral builds a Referral from store attributes.
func DecodeReferral(id string, fields map[string]interface{}) (*Referral, error) {
	var r Referral
	if err := decode(fields, &r); err != nil {
		return nil, err
	}
	r.ID = id
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Referral) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("referral id is empty")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.SaleAmount < 0 {
		return fmt.Errorf("saleAmount is negative")
	}
	if r.CommissionDue < 0 {
		return fmt.Errorf("commissionDue is negative")
	}
	return nil
}

// Holder returns the supplier accountable for the referral: the assigned
// supplier once approved, the suggested one before that.
func (r *Referral) Holder() string {
	if r.AssignedSupplier != "" {
		return r.AssignedSupplier
	}
	return r.SuggestedSupplier
}

// Fields encodes the referral for a Create call.
func (r *Referral) Fields() (map[string]interface{}, error) {
	return encode(r)
}
