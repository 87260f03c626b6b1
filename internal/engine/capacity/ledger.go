// Package capacity owns supplier active-referral counters and the
// capacity-derived supplier status. Nothing else writes those fields.
//
// Counters live in the record store, which has no transactions: Reserve and
// Release are read-modify-write and concurrent calls can lose an update.
// Reconcile converges status from the current counters, and the Sweeper
// resolves reservations left dangling by a failed referral write.
package capacity

import (
	"context"
	stderrors "errors"
	"sort"

	"referral-workers/internal/common/errors"
	"referral-workers/internal/common/logger"
	"referral-workers/internal/common/metrics"
	"referral-workers/internal/models"
	"referral-workers/internal/recordstore"
)

// Load is a supplier's occupancy.
type Load struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Compare orders loads by Current/Max without floating point. It returns
// -1, 0 or 1.
func (l Load) Compare(o Load) int {
	lhs := l.Current * o.Max
	rhs := o.Current * l.Max
	switch {
	case lhs < rhs:
		return -1
	case lhs > rhs:
		return 1
	default:
		return 0
	}
}

func (l Load) Full() bool {
	return l.Current >= l.Max
}

// Reservation is the outcome of Reserve. Advisory is set when the supplier
// ended up above its maximum; the slot is still taken.
type Reservation struct {
	SupplierID string                `json:"supplierId"`
	Load       Load                  `json:"load"`
	Advisory   *errors.StandardError `json:"advisory,omitempty"`
}

func (r *Reservation) OverCapacity() bool {
	return r != nil && r.Advisory != nil
}

// StatusChange is one supplier status flip applied by Reconcile.
type StatusChange struct {
	SupplierID string `json:"supplierId"`
	From       string `json:"from"`
	To         string `json:"to"`
	Load       Load   `json:"load"`
}

type Ledger struct {
	store    recordstore.Store
	defaults models.SupplierDefaults
	logger   logger.Logger
}

func NewLedger(store recordstore.Store, defaults models.SupplierDefaults, log logger.Logger) *Ledger {
	return &Ledger{store: store, defaults: defaults, logger: log}
}

// Decode interprets a supplier record with the ledger's defaults.
func (l *Ledger) Decode(rec *recordstore.Record) (*models.Supplier, error) {
	s, err := models.DecodeSupplier(rec.ID, rec.Fields, l.defaults)
	if err != nil {
		return nil, errors.NewInvalidRecordError(models.TableSuppliers, rec.ID, err.Error())
	}
	return s, nil
}

// Supplier loads and decodes one supplier.
func (l *Ledger) Supplier(ctx context.Context, id string) (*models.Supplier, error) {
	rec, err := l.store.Get(ctx, models.TableSuppliers, id)
	if err != nil {
		return nil, err
	}
	return l.Decode(rec)
}

// LoadOf is the only place counters are read for decisions.
func (l *Ledger) LoadOf(s *models.Supplier) Load {
	current := s.CurrentActiveReferrals
	if current < 0 {
		current = 0
	}
	return Load{Current: current, Max: s.MaxActiveReferrals}
}

// Reserve takes one slot on a supplier. It never refuses: going over the
// maximum yields an advisory on the result instead of an error.
func (l *Ledger) Reserve(ctx context.Context, supplierID string) (*Reservation, error) {
	s, err := l.Supplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}

	load := l.LoadOf(s)
	load.Current++

	if _, err := l.store.Update(ctx, models.TableSuppliers, supplierID, map[string]interface{}{
		models.FieldCurrentActiveReferrals: load.Current,
	}); err != nil {
		return nil, err
	}

	res := &Reservation{SupplierID: supplierID, Load: load}
	if load.Current > load.Max {
		res.Advisory = errors.NewCapacityExceededAdvisory(supplierID, load.Current, load.Max)
		metrics.CapacityAdvisories.Inc()
		l.logger.Warn("Supplier over capacity after reservation", map[string]interface{}{
			"supplierId": supplierID,
			"current":    load.Current,
			"max":        load.Max,
		})
	}

	l.logger.Debug("Capacity reserved", map[string]interface{}{
		"supplierId": supplierID,
		"current":    load.Current,
		"max":        load.Max,
	})
	return res, nil
}

// Release frees one slot. At zero it does nothing and reports changed=false.
func (l *Ledger) Release(ctx context.Context, supplierID string) (Load, bool, error) {
	s, err := l.Supplier(ctx, supplierID)
	if err != nil {
		return Load{}, false, err
	}

	load := l.LoadOf(s)
	if load.Current == 0 {
		l.logger.Warn("Release on empty supplier ignored", map[string]interface{}{
			"supplierId": supplierID,
		})
		return load, false, nil
	}

	load.Current--
	if _, err := l.store.Update(ctx, models.TableSuppliers, supplierID, map[string]interface{}{
		models.FieldCurrentActiveReferrals: load.Current,
	}); err != nil {
		return Load{}, false, err
	}

	l.logger.Debug("Capacity released", map[string]interface{}{
		"supplierId": supplierID,
		"current":    load.Current,
		"max":        load.Max,
	})
	return load, true, nil
}

// Reconcile flips Active suppliers that are full to AtCapacity and
// AtCapacity suppliers with room back to Active. Other statuses are left
// alone. It depends only on current counters, so repeated or concurrent
// runs are safe. Changes that were applied are returned even when some
// updates failed.
func (l *Ledger) Reconcile(ctx context.Context) ([]StatusChange, error) {
	recs, err := l.store.Query(ctx, models.TableSuppliers, recordstore.Or(
		recordstore.Eq(models.FieldActiveStatus, models.SupplierActive),
		recordstore.Eq(models.FieldActiveStatus, models.SupplierAtCapacity),
	))
	if err != nil {
		return nil, err
	}

	var (
		changes []StatusChange
		errs    []error
	)
	for _, rec := range recs {
		s, err := l.Decode(rec)
		if err != nil {
			l.logger.Warn("Skipping invalid supplier during reconcile", map[string]interface{}{
				"supplierId": rec.ID,
				"error":      err.Error(),
			})
			continue
		}

		target := targetStatus(s.ActiveStatus, l.LoadOf(s))
		if target == s.ActiveStatus {
			continue
		}

		if _, err := l.store.Update(ctx, models.TableSuppliers, s.ID, map[string]interface{}{
			models.FieldActiveStatus: target,
		}); err != nil {
			errs = append(errs, err)
			continue
		}

		change := StatusChange{SupplierID: s.ID, From: s.ActiveStatus, To: target, Load: l.LoadOf(s)}
		changes = append(changes, change)
		metrics.CapacityStatusChanges.WithLabelValues(target).Inc()
		l.logger.Info("Supplier capacity status changed", map[string]interface{}{
			"supplierId": s.ID,
			"from":       change.From,
			"to":         change.To,
			"current":    change.Load.Current,
			"max":        change.Load.Max,
		})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].SupplierID < changes[j].SupplierID })
	return changes, stderrors.Join(errs...)
}

func targetStatus(status string, load Load) string {
	switch {
	case status == models.SupplierActive && load.Full():
		return models.SupplierAtCapacity
	case status == models.SupplierAtCapacity && !load.Full():
		return models.SupplierActive
	default:
		return status
	}
}
