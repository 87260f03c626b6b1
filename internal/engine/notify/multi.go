package notify

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/metrics"
	"referral-workers/internal/models"
)

// Channel is one delivery medium. Send returns the provider message id when
// there is one.
type Channel interface {
	Name() string
	Send(ctx context.Context, intent Intent) (string, error)
}

// Multi fans an intent out to every channel. A failing channel does not stop
// the others.
type Multi struct {
	channels []Channel
	logger   logger.Logger
	now      func() time.Time
}

func NewMulti(log logger.Logger, channels ...Channel) *Multi {
	return &Multi{channels: channels, logger: log, now: time.Now}
}

// Deliver sends the intent on every channel and returns one delivery record
// per channel.
func (m *Multi) Deliver(ctx context.Context, intent Intent) []models.Notification {
	out := make([]models.Notification, 0, len(m.channels))
	for _, ch := range m.channels {
		n := models.Notification{
			ID:         uuid.NewString(),
			Kind:       string(intent.Kind),
			ReferralID: intent.ReferralID,
			Channel:    ch.Name(),
			Status:     models.DeliverySent,
		}

		id, err := ch.Send(ctx, intent)
		n.MessageID = id
		if err != nil {
			n.Status = models.DeliveryFailed
			n.Error = describe(err)
			m.logger.Warn("Notification delivery failed", map[string]interface{}{
				"channel":    ch.Name(),
				"kind":       string(intent.Kind),
				"referralId": intent.ReferralID,
				"error":      n.Error,
			})
		} else {
			n.SentAt = m.now().UTC().Format(time.RFC3339)
		}

		metrics.NotificationsSent.WithLabelValues(ch.Name(), n.Status).Inc()
		out = append(out, n)
	}
	return out
}

func (m *Multi) Dispatch(ctx context.Context, intent Intent) error {
	if len(m.channels) == 0 {
		metrics.NotificationsSent.WithLabelValues("none", models.DeliveryDisabled).Inc()
		return nil
	}

	var errs []error
	for _, n := range m.Deliver(ctx, intent) {
		if n.Status == models.DeliveryFailed {
			errs = append(errs, stderrors.New(n.Channel+": "+n.Error))
		}
	}
	return stderrors.Join(errs...)
}

func describe(err error) string {
	if se, ok := errors.AsStandard(err); ok && se.Details != "" {
		return se.Details
	}
	return err.Error()
}

// LogDispatcher writes intents to the log. Used by the CLI and when no
// channel is enabled.
type LogDispatcher struct {
	Logger logger.Logger
}

func (l LogDispatcher) Dispatch(_ context.Context, intent Intent) error {
	l.Logger.Info("Notification intent", map[string]interface{}{
		"kind":             string(intent.Kind),
		"referralId":       intent.ReferralID,
		"summary":          intent.Summary,
		"suggestedActions": intent.SuggestedActions,
	})
	return nil
}
