package notify

import (
	"context"
	"sort"
	"strings"

	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/http"
)

// ChatChannel posts intents to an incoming-webhook URL as a card with one
// button per suggested action. Buttons link into the admin console.
type ChatChannel struct {
	client     *http.Client
	webhookURL string
	consoleURL string
}

func NewChatChannel(client *http.Client, webhookURL, consoleURL string) *ChatChannel {
	return &ChatChannel{client: client, webhookURL: webhookURL, consoleURL: strings.TrimRight(consoleURL, "/")}
}

func (c *ChatChannel) Name() string { return "chat" }

type chatField struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type chatButton struct {
	Text   string `json:"text"`
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

type chatMessage struct {
	Text       string       `json:"text"`
	Kind       string       `json:"kind"`
	ReferralID string       `json:"referralId"`
	Fields     []chatField  `json:"fields,omitempty"`
	Buttons    []chatButton `json:"buttons,omitempty"`
}

func (c *ChatChannel) message(intent Intent) chatMessage {
	msg := chatMessage{
		Text:       intent.Summary,
		Kind:       string(intent.Kind),
		ReferralID: intent.ReferralID,
	}

	keys := make([]string, 0, len(intent.Fields))
	for k := range intent.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg.Fields = append(msg.Fields, chatField{Title: k, Value: intent.Fields[k]})
	}

	for _, a := range intent.SuggestedActions {
		btn := chatButton{Text: buttonText(a), Action: string(a)}
		if c.consoleURL != "" {
			btn.URL = c.consoleURL + "/" + intent.ReferralID + "?action=" + strings.ToLower(string(a))
		}
		msg.Buttons = append(msg.Buttons, btn)
	}
	return msg
}

func buttonText(a Action) string {
	if a == ActionViewDetails {
		return "View details"
	}
	return string(a)
}

func (c *ChatChannel) Send(ctx context.Context, intent Intent) (string, error) {
	if err := c.client.PostJSON(ctx, c.webhookURL, c.message(intent)); err != nil {
		return "", errors.NewNotificationSendFailedError(c.Name(), err)
	}
	return "", nil
}
