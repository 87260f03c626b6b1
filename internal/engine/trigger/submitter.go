package trigger

import (
	"context"
	"sync"
	"time"

	"referral-workers/internal/common/logger"
)

// Publisher is the slice of the Zeebe client used to start a match.
type Publisher interface {
	PublishMessage(ctx context.Context, name, correlationKey string, variables map[string]interface{}) error
}

// Submitter hands match requests to the process engine as a message
// correlated on the buyer id. The process then runs trigger-referral-match.
type Submitter struct {
	publisher Publisher
	message   string
	timeout   time.Duration
	logger    logger.Logger
	wg        sync.WaitGroup
}

func NewSubmitter(p Publisher, message string, timeout time.Duration, log logger.Logger) *Submitter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Submitter{publisher: p, message: message, timeout: timeout, logger: log}
}

func variables(req Request) map[string]interface{} {
	return map[string]interface{}{
		"buyerId":              req.BuyerID,
		"buyerState":           req.BuyerState,
		"buyerName":            req.BuyerName,
		"buyerEmail":           req.BuyerEmail,
		"buyerPhone":           req.BuyerPhone,
		"orderType":            req.OrderType,
		"budgetRange":          req.BudgetRange,
		"intentScore":          req.IntentScore,
		"intentClassification": req.IntentClassification,
		"notes":                req.Notes,
	}
}

// Submit publishes synchronously.
func (s *Submitter) Submit(ctx context.Context, req Request) error {
	return s.publisher.PublishMessage(ctx, s.message, req.BuyerID, variables(req))
}

// SubmitAsync publishes in the background. Failures are logged and never
// reach the caller.
func (s *Submitter) SubmitAsync(req Request) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.Submit(ctx, req); err != nil {
			s.logger.Error("Match trigger submission failed", map[string]interface{}{
				"buyerId": req.BuyerID,
				"message": s.message,
				"error":   err.Error(),
			})
			return
		}
		s.logger.Debug("Match trigger submitted", map[string]interface{}{
			"buyerId": req.BuyerID,
			"message": s.message,
		})
	}()
}

// Wait blocks until background submissions finish.
func (s *Submitter) Wait() {
	s.wg.Wait()
}
