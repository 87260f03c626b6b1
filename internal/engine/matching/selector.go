// Package matching picks the supplier a new referral is suggested to.
package matching

import (
	"context"
	"sort"

	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/metrics"
	"referral-workers/internal/engine/capacity"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

// Match outcomes, used as metric labels.
const (
	OutcomeMatched = "matched"
	OutcomeNoMatch = "no_match"
)

// Criteria describes the buyer being matched. Only the state affects
// eligibility; order type and budget are carried for logging.
type Criteria struct {
	BuyerState  string `json:"buyerState"`
	OrderType   string `json:"orderType,omitempty"`
	BudgetRange string `json:"budgetRange,omitempty"`
}

// Candidate is an eligible supplier with its load at selection time.
type Candidate struct {
	SupplierID       string        `json:"supplierId"`
	Name             string        `json:"name"`
	Load             capacity.Load `json:"load"`
	PerformanceScore int           `json:"performanceScore"`
}

// Match is the selector's answer. Found=false is a normal outcome that needs
// a human to pick a supplier.
type Match struct {
	SupplierID string        `json:"supplierId,omitempty"`
	Found      bool          `json:"found"`
	Eligible   int           `json:"eligible"`
	Load       capacity.Load `json:"load"`
}

type Selector struct {
	store  recordstore.Store
	ledger *capacity.Ledger
	logger logger.Logger
}

func NewSelector(store recordstore.Store, ledger *capacity.Ledger, log logger.Logger) *Selector {
	return &Selector{store: store, ledger: ledger, logger: log}
}

// Candidates returns every eligible supplier, best first: lowest load ratio,
// then highest performance score, then supplier id.
func (s *Selector) Candidates(ctx context.Context, c Criteria) ([]Candidate, error) {
	state := models.NormalizeState(c.BuyerState)
	if state == "" {
		return nil, nil
	}

	recs, err := s.store.Query(ctx, models.TableSuppliers, recordstore.And(
		recordstore.Eq(models.FieldCertified, true),
		recordstore.Eq(models.FieldActiveStatus, models.SupplierActive),
	))
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(recs))
	for _, rec := range recs {
		sup, err := s.ledger.Decode(rec)
		if err != nil {
			s.logger.Warn("Skipping invalid supplier during matching", map[string]interface{}{
				"supplierId": rec.ID,
				"error":      err.Error(),
			})
			continue
		}
		// the query is re-checked since some backends match loosely typed values
		if !sup.Certified || sup.ActiveStatus != models.SupplierActive || !sup.Serves(state) {
			continue
		}
		out = append(out, Candidate{
			SupplierID:       sup.ID,
			Name:             sup.Name,
			Load:             s.ledger.LoadOf(sup),
			PerformanceScore: sup.PerformanceScore,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if cmp := out[i].Load.Compare(out[j].Load); cmp != 0 {
			return cmp < 0
		}
		if out[i].PerformanceScore != out[j].PerformanceScore {
			return out[i].PerformanceScore > out[j].PerformanceScore
		}
		return out[i].SupplierID < out[j].SupplierID
	})
	return out, nil
}

// Select returns the best eligible supplier for c.
func (s *Selector) Select(ctx context.Context, c Criteria) (*Match, error) {
	candidates, err := s.Candidates(ctx, c)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		metrics.MatchOutcomes.WithLabelValues(OutcomeNoMatch).Inc()
		s.logger.Info("No eligible supplier", map[string]interface{}{
			"buyerState":  c.BuyerState,
			"orderType":   c.OrderType,
			"budgetRange": c.BudgetRange,
		})
		return &Match{}, nil
	}

	best := candidates[0]
	metrics.MatchOutcomes.WithLabelValues(OutcomeMatched).Inc()
	s.logger.Info("Supplier selected", map[string]interface{}{
		"buyerState": c.BuyerState,
		"supplierId": best.SupplierID,
		"current":    best.Load.Current,
		"max":        best.Load.Max,
		"eligible":   len(candidates),
	})
	return &Match{
		SupplierID: best.SupplierID,
		Found:      true,
		Eligible:   len(candidates),
		Load:       best.Load,
	}, nil
}
