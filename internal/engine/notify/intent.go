// Package notify turns referral lifecycle events into messages for admins
// and suppliers. Delivery is best effort: nothing here may fail a transition.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind is the lifecycle event an intent describes.
type Kind string

const (
	KindNewLead       Kind = "NewLead"
	KindApproved      Kind = "Approved"
	KindStatusChanged Kind = "StatusChanged"
	KindClosed        Kind = "Closed"
)

// Action is a follow-up a human can take from the message.
type Action string

const (
	ActionApprove     Action = "Approve"
	ActionReassign    Action = "Reassign"
	ActionViewDetails Action = "ViewDetails"
	ActionReject      Action = "Reject"
)

// Intent is a structured notification, independent of the channel that
// carries it.
type Intent struct {
	Kind             Kind              `json:"kind"`
	ReferralID       string            `json:"referralId"`
	Summary          string            `json:"summary"`
	Fields           map[string]string `json:"fields,omitempty"`
	SuggestedActions []Action          `json:"suggestedActions,omitempty"`
	OccurredAt       time.Time         `json:"occurredAt"`
}

// Dispatcher delivers intents.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent Intent) error
}

// Subject is a one-line title for email and SMS.
func (i Intent) Subject() string {
	switch i.Kind {
	case KindNewLead:
		return "New referral awaiting approval"
	case KindApproved:
		return "Referral approved"
	case KindClosed:
		return "Referral closed"
	default:
		return "Referral updated"
	}
}

// Text renders the intent as plain text with fields in key order.
func (i Intent) Text() string {
	var b strings.Builder
	b.WriteString(i.Summary)
	b.WriteString("\n")

	keys := make([]string, 0, len(i.Fields))
	for k := range i.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, i.Fields[k])
	}
	fmt.Fprintf(&b, "\nReferral: %s", i.ReferralID)
	return b.String()
}

// NopDispatcher drops everything.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(context.Context, Intent) error { return nil }
