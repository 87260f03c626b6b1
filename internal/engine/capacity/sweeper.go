package capacity

import (
	"context"
	stderrors "errors"
	"time"

	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/metrics"
	"referral-workers/internal/common/observability"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

// Journal resolutions.
const (
	ActionConfirmed = "confirmed" // the referral write landed; only the entry was left behind
	ActionReverted  = "reverted"  // the referral write never landed; the counter change was undone
)

// Compensation is one journal entry resolved by a sweep.
type Compensation struct {
	Entry  Entry  `json:"entry"`
	Action string `json:"action"`
}

// Report summarizes a sweep.
type Report struct {
	StatusChanges []StatusChange `json:"statusChanges"`
	Compensations []Compensation `json:"compensations"`
	Duration      time.Duration  `json:"duration"`
}

// Sweeper resolves dangling journal entries and then reconciles supplier status.
type Sweeper struct {
	ledger  *Ledger
	journal Journal
	store   recordstore.Store
	grace   time.Duration
	now     func() time.Time
	obs     *observability.Observability
	logger  logger.Logger
}

func NewSweeper(ledger *Ledger, journal Journal, store recordstore.Store, grace time.Duration, obs *observability.Observability, log logger.Logger) *Sweeper {
	if journal == nil {
		journal = NopJournal{}
	}
	return &Sweeper{
		ledger:  ledger,
		journal: journal,
		store:   store,
		grace:   grace,
		now:     time.Now,
		obs:     obs,
		logger:  log,
	}
}

// Run performs one full sweep. A partial report is returned alongside any error.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	start := s.now()
	report := &Report{}
	var errs []error

	entries, err := s.journal.Pending(ctx)
	if err != nil {
		s.logger.Warn("Reservation journal unavailable, skipping compensation", map[string]interface{}{
			"error": err.Error(),
		})
	}
	cutoff := start.Add(-s.grace)
	for _, e := range entries {
		if e.RecordedAt.After(cutoff) {
			continue
		}
		action, err := s.resolve(ctx, e)
		if err != nil {
			errs = append(errs, err)
			s.logger.Error("Failed to resolve journal entry", map[string]interface{}{
				"referralId": e.ReferralID,
				"supplierId": e.SupplierID,
				"op":         string(e.Op),
				"error":      err.Error(),
			})
			continue
		}
		report.Compensations = append(report.Compensations, Compensation{Entry: e, Action: action})
		metrics.JournalCompensations.WithLabelValues(string(e.Op), action).Inc()
	}

	changes, err := s.ledger.Reconcile(ctx)
	report.StatusChanges = changes
	if err != nil {
		errs = append(errs, err)
	}

	report.Duration = s.now().Sub(start)
	s.obs.RecordSweep(ctx, report.Duration, len(report.StatusChanges), len(report.Compensations))
	s.logger.Info("Capacity sweep finished", map[string]interface{}{
		"statusChanges": len(report.StatusChanges),
		"compensations": len(report.Compensations),
		"durationMs":    report.Duration.Milliseconds(),
	})
	return report, stderrors.Join(errs...)
}

// resolve decides whether the referral write paired with e landed.
func (s *Sweeper) resolve(ctx context.Context, e Entry) (string, error) {
	landed, err := s.landed(ctx, e)
	if err != nil {
		return "", err
	}

	action := ActionConfirmed
	if !landed {
		switch e.Op {
		case OpReserve:
			_, _, err = s.ledger.Release(ctx, e.SupplierID)
		case OpRelease:
			_, err = s.ledger.Reserve(ctx, e.SupplierID)
		}
		if err != nil {
			return "", err
		}
		action = ActionReverted
		s.logger.Warn("Reverted dangling capacity change", map[string]interface{}{
			"referralId": e.ReferralID,
			"supplierId": e.SupplierID,
			"op":         string(e.Op),
			"recordedAt": e.RecordedAt.Format(time.RFC3339),
		})
	}

	if err := s.journal.Clear(ctx, e.ReferralID, e.Op); err != nil {
		return "", err
	}
	return action, nil
}

func (s *Sweeper) landed(ctx context.Context, e Entry) (bool, error) {
	rec, err := s.store.Get(ctx, models.TableReferrals, e.ReferralID)
	if errors.IsCode(err, errors.ErrCodeResourceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ref, err := models.DecodeReferral(rec.ID, rec.Fields)
	if err != nil {
		return false, errors.NewInvalidRecordError(models.TableReferrals, rec.ID, err.Error())
	}

	switch e.Op {
	case OpReserve:
		return ref.Status.HoldsSlot() && ref.Holder() == e.SupplierID, nil
	case OpRelease:
		return ref.Status.Terminal(), nil
	default:
		return true, nil
	}
}

// Schedule runs the sweep every interval until ctx is cancelled. The
// returned channel is closed when the loop exits.
func (s *Sweeper) Schedule(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Run(ctx); err != nil {
					s.logger.Error("Scheduled capacity sweep failed", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}
		}
	}()
	return done
}
