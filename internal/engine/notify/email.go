package notify

import (
	"context"

	"referral-workers/internal/common/aws"
	"referral-workers/internal/common/errors"
)

// EmailChannel mails every intent to the admin distribution list through SES.
type EmailChannel struct {
	ses *aws.SESClient
	to  []string
}

func NewEmailChannel(ses *aws.SESClient, to []string) *EmailChannel {
	return &EmailChannel{ses: ses, to: to}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, intent Intent) (string, error) {
	if len(e.to) == 0 {
		return "", nil
	}
	id, err := e.ses.SendText(ctx, e.to, intent.Subject(), intent.Text())
	if err != nil {
		return "", errors.NewNotificationSendFailedError(e.Name(), err)
	}
	return id, nil
}
