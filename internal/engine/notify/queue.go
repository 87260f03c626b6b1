package notify

import (
	"context"
	"sync"
	"time"

	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/metrics"
	"referral-workers/internal/models"
)

// Queue hands intents to a background goroutine so callers never wait on a
// notification provider. When the buffer is full the intent is dropped and
// logged.
type Queue struct {
	next    Dispatcher
	logger  logger.Logger
	timeout time.Duration
	intents chan Intent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewQueue(next Dispatcher, size int, timeout time.Duration, log logger.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	q := &Queue{
		next:    next,
		logger:  log,
		timeout: timeout,
		intents: make(chan Intent, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for intent := range q.intents {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.next.Dispatch(ctx, intent); err != nil {
			q.logger.Error("Queued notification failed", map[string]interface{}{
				"kind":       string(intent.Kind),
				"referralId": intent.ReferralID,
				"error":      err.Error(),
			})
		}
		cancel()
	}
}

// Dispatch enqueues without blocking. It never returns an error.
func (q *Queue) Dispatch(_ context.Context, intent Intent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.drop(intent, "queue closed")
		return nil
	}
	select {
	case q.intents <- intent:
	default:
		q.drop(intent, "queue full")
	}
	return nil
}

func (q *Queue) drop(intent Intent, reason string) {
	metrics.NotificationsSent.WithLabelValues("queue", models.DeliveryDropped).Inc()
	q.logger.Warn("Notification dropped", map[string]interface{}{
		"kind":       string(intent.Kind),
		"referralId": intent.ReferralID,
		"reason":     reason,
	})
}

// Close stops accepting intents and waits for queued ones to be delivered,
// bounded by ctx.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.intents)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
