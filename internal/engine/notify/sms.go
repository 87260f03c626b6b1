package notify

import (
	"context"
	stderrors "errors"

	"referral-workers/internal/common/aws"
	"referral-workers/internal/common/errors"
)

// SMSChannel texts admins through SNS. Only new leads and closes are sent;
// the other kinds are too chatty for SMS.
type SMSChannel struct {
	sns     *aws.SNSClient
	numbers []string
}

func NewSMSChannel(sns *aws.SNSClient, numbers []string) *SMSChannel {
	return &SMSChannel{sns: sns, numbers: numbers}
}

func (s *SMSChannel) Name() string { return "sms" }

func (s *SMSChannel) Send(ctx context.Context, intent Intent) (string, error) {
	if intent.Kind != KindNewLead && intent.Kind != KindClosed {
		return "", nil
	}

	var (
		lastID string
		errs   []error
	)
	for _, n := range s.numbers {
		id, err := s.sns.SendSMS(ctx, n, intent.Subject()+": "+intent.Summary)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		lastID = id
	}
	if err := stderrors.Join(errs...); err != nil {
		return lastID, errors.NewNotificationSendFailedError(s.Name(), err)
	}
	return lastID, nil
}
