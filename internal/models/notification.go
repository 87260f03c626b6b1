package models

// Delivery statuses.
const (
	DeliverySent     = "sent"
	DeliveryFailed   = "failed"
	DeliveryDisabled = "disabled"
	DeliveryDropped  = "dropped"
)

// Notification is the delivery record of one intent on one channel.
type Notification struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	ReferralID string `json:"referralId"`
	Channel    string `json:"channel"` // chat, email, sms
	Status     string `json:"status"`
	MessageID  string `json:"messageId,omitempty"`
	Error      string `json:"error,omitempty"`
	SentAt     string `json:"sentAt,omitempty"`
}
