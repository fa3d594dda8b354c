package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments the projection engine records
// against. All instrument creation errors are returned wrapped, matching the
// rest of this package's style.
type Metrics struct {
	EventsProcessed  metric.Int64Counter
	BatchesPersisted metric.Int64Counter
	PersistDuration  metric.Float64Histogram
	LockRenewals     metric.Int64Counter
	LockFailures     metric.Int64Counter
	ActiveLeases     metric.Int64UpDownCounter
	HandlerErrors    metric.Int64Counter
}

// NewMetrics creates every instrument the engine needs, under the
// "projector." namespace.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.EventsProcessed, err = meter.Int64Counter(
		"projector.events.processed",
		metric.WithDescription("Total events dispatched to a projection handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.processed: %w", err)
	}

	m.BatchesPersisted, err = meter.Int64Counter(
		"projector.batches.persisted",
		metric.WithDescription("Total checkpoint batches persisted"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batches.persisted: %w", err)
	}

	m.PersistDuration, err = meter.Float64Histogram(
		"projector.persist.duration",
		metric.WithDescription("Checkpoint persist duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating persist.duration: %w", err)
	}

	m.LockRenewals, err = meter.Int64Counter(
		"projector.lock.renewals",
		metric.WithDescription("Total successful lock lease renewals"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lock.renewals: %w", err)
	}

	m.LockFailures, err = meter.Int64Counter(
		"projector.lock.failures",
		metric.WithDescription("Total failed lock acquisitions or renewals"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lock.failures: %w", err)
	}

	m.ActiveLeases, err = meter.Int64UpDownCounter(
		"projector.lock.active",
		metric.WithDescription("Number of projections currently holding a lock in this process"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lock.active: %w", err)
	}

	m.HandlerErrors, err = meter.Int64Counter(
		"projector.handler.errors",
		metric.WithDescription("Total handler or outer-catch errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating handler.errors: %w", err)
	}

	return m, nil
}

// RecordEvent records one event having been dispatched to a handler.
func (m *Metrics) RecordEvent(ctx context.Context, projection, eventName string) {
	m.EventsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("projection", projection),
		attribute.String("event_name", eventName),
	))
}

// RecordPersist records one checkpoint batch write and its duration.
func (m *Metrics) RecordPersist(ctx context.Context, projection string, duration time.Duration) {
	attrs := attribute.String("projection", projection)
	m.BatchesPersisted.Add(ctx, 1, metric.WithAttributes(attrs))
	m.PersistDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs))
}

// RecordLockAcquired increments the active-lease gauge for projection.
func (m *Metrics) RecordLockAcquired(ctx context.Context, projection string) {
	m.ActiveLeases.Add(ctx, 1, metric.WithAttributes(attribute.String("projection", projection)))
}

// RecordLockReleased decrements the active-lease gauge for projection.
func (m *Metrics) RecordLockReleased(ctx context.Context, projection string) {
	m.ActiveLeases.Add(ctx, -1, metric.WithAttributes(attribute.String("projection", projection)))
}

// RecordLockRenewal records a successful or failed lease renewal.
func (m *Metrics) RecordLockRenewal(ctx context.Context, projection string, ok bool) {
	attrs := attribute.String("projection", projection)
	if ok {
		m.LockRenewals.Add(ctx, 1, metric.WithAttributes(attrs))
		return
	}
	m.LockFailures.Add(ctx, 1, metric.WithAttributes(attrs))
}

// RecordHandlerError records an error surfaced from the outer-catch path.
func (m *Metrics) RecordHandlerError(ctx context.Context, projection string, errorType string) {
	m.HandlerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("projection", projection),
		attribute.String("error_type", errorType),
	))
}
