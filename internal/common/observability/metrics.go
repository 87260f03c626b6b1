package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records job and sweep measurements through an OpenTelemetry
// meter exported on the Prometheus registry. The zero value is a no-op.
type Observability struct {
	meterProvider *metric.MeterProvider
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	sweepDuration otelmetric.Float64Histogram
	sweepChanges  otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	sweepDuration, _ := meter.Float64Histogram(
		"capacity.sweep.duration",
		otelmetric.WithDescription("Capacity reconciliation sweep duration"),
		otelmetric.WithUnit("ms"),
	)
	sweepChanges, _ := meter.Int64Counter(
		"capacity.sweep.changes",
		otelmetric.WithDescription("Supplier status changes and journal compensations applied by sweeps"),
	)

	return &Observability{
		meterProvider: provider,
		jobCounter:    jobCounter,
		jobDuration:   jobDuration,
		sweepDuration: sweepDuration,
		sweepChanges:  sweepChanges,
	}
}

func (o *Observability) RecordJob(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	)
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, attrs)
	}
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// RecordSweep records one reconciliation pass.
func (o *Observability) RecordSweep(ctx context.Context, duration time.Duration, statusChanges, compensations int) {
	if o == nil {
		return
	}
	if o.sweepDuration != nil {
		o.sweepDuration.Record(ctx, float64(duration.Milliseconds()))
	}
	if o.sweepChanges != nil {
		o.sweepChanges.Add(ctx, int64(statusChanges), otelmetric.WithAttributes(attribute.String("kind", "status")))
		o.sweepChanges.Add(ctx, int64(compensations), otelmetric.WithAttributes(attribute.String("kind", "journal")))
	}
}

func (o *Observability) Shutdown() {
	if o == nil || o.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.meterProvider.Shutdown(ctx)
}
