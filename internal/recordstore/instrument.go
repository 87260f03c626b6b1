package recordstore

import (
	"context"
	"time"

	"referral-workers/internal/common/metrics"
)

// Instrumented bounds every call with a timeout and records its latency.
type Instrumented struct {
	next    Store
	timeout time.Duration
}

func Instrument(next Store, timeout time.Duration) *Instrumented {
	return &Instrumented{next: next, timeout: timeout}
}

func (s *Instrumented) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func observe(op, table string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.StoreOperationDuration.WithLabelValues(op, table, outcome).Observe(time.Since(start).Seconds())
}

func (s *Instrumented) Get(ctx context.Context, table, id string) (rec *Record, err error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	defer func(start time.Time) { observe("get", table, start, err) }(time.Now())
	return s.next.Get(ctx, table, id)
}

func (s *Instrumented) Query(ctx context.Context, table string, filter Filter) (recs []*Record, err error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	defer func(start time.Time) { observe("query", table, start, err) }(time.Now())
	return s.next.Query(ctx, table, filter)
}

func (s *Instrumented) Create(ctx context.Context, table string, fields map[string]interface{}) (rec *Record, err error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	defer func(start time.Time) { observe("create", table, start, err) }(time.Now())
	return s.next.Create(ctx, table, fields)
}

func (s *Instrumented) Update(ctx context.Context, table, id string, fields map[string]interface{}) (rec *Record, err error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	defer func(start time.Time) { observe("update", table, start, err) }(time.Now())
	return s.next.Update(ctx, table, id, fields)
}
