package reviewreferral

// Review decisions.
const (
	DecisionApprove  = "approve"
	DecisionReject   = "reject"
	DecisionReassign = "reassign"
)

type Input struct {
	ReferralID string `json:"referralId"`
	Decision   string `json:"decision"`
	ActorRole  string `json:"actorRole"`
	ActorID    string `json:"actorId"`
	// SupplierID overrides the suggested supplier on approve and names the
	// new suggestion on reassign.
	SupplierID string `json:"supplierId"`
	Reason     string `json:"reason"`
}

type Output struct {
	ReferralID        string `json:"referralId"`
	ReferralStatus    string `json:"referralStatus"`
	AssignedSupplier  string `json:"assignedSupplier,omitempty"`
	SuggestedSupplier string `json:"suggestedSupplier,omitempty"`
	CapacityAdvisory  bool   `json:"capacityAdvisory"`
	SupplierCurrent   int    `json:"supplierCurrentActive,omitempty"`
	SupplierMax       int    `json:"supplierMaxActive,omitempty"`
}
