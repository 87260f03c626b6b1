package triggermatch

import "referral-workers/internal/engine/trigger"

// Input is the buyer snapshot carried by the profile-updated message.
type Input = trigger.Request

type Output struct {
	ReferralID     string `json:"referralId"`
	SupplierID     string `json:"suggestedSupplier"`
	Matched        bool   `json:"matched"`
	ReferralStatus string `json:"referralStatus"`
}
