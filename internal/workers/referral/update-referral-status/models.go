package updatereferralstatus

// Actions.
const (
	ActionTransition         = "transition"
	ActionMarkCommissionPaid = "markCommissionPaid"
)

type Input struct {
	ReferralID string   `json:"referralId"`
	Action     string   `json:"action"`
	ActorRole  string   `json:"actorRole"`
	ActorID    string   `json:"actorId"`
	Status     string   `json:"status"`
	SaleAmount *float64 `json:"saleAmount"`
	Notes      string   `json:"notes"`
}

type Output struct {
	ReferralID     string  `json:"referralId"`
	ReferralStatus string  `json:"referralStatus"`
	Closed         bool    `json:"closed"`
	SaleAmount     float64 `json:"saleAmount"`
	CommissionDue  float64 `json:"commissionDue"`
	CommissionPaid bool    `json:"commissionPaid"`
}
