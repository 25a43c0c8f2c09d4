package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/orgdir"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Transfer lifecycle metrics
	TransfersInitiatedTotal  metric.Int64Counter
	TransferTransitionsTotal metric.Int64Counter
	TransfersSweptTotal      metric.Int64Counter
	SweepDuration            metric.Float64Histogram

	// Storage metrics
	TxConflictsTotal metric.Int64Counter

	// Side effect metrics
	HookFailuresTotal  metric.Int64Counter
	EventsPublished    metric.Int64Counter
	EventsDroppedTotal metric.Int64Counter
	ActiveSubscribers  metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.TransfersInitiatedTotal, _ = meter.Int64Counter(
		"orgdir.transfers.initiated.total",
		metric.WithDescription("Total number of ownership transfers initiated"),
		metric.WithUnit("{transfer}"),
	)

	m.TransferTransitionsTotal, _ = meter.Int64Counter(
		"orgdir.transfers.transitions.total",
		metric.WithDescription("Total number of terminal transfer transitions, by status"),
		metric.WithUnit("{transition}"),
	)

	m.TransfersSweptTotal, _ = meter.Int64Counter(
		"orgdir.transfers.swept.total",
		metric.WithDescription("Total number of pending transfers expired by the sweeper"),
		metric.WithUnit("{transfer}"),
	)

	m.SweepDuration, _ = meter.Float64Histogram(
		"orgdir.transfers.sweep.duration",
		metric.WithDescription("Duration of expiry sweeps"),
		metric.WithUnit("ms"),
	)

	m.TxConflictsTotal, _ = meter.Int64Counter(
		"orgdir.store.tx_conflicts.total",
		metric.WithDescription("Total number of transactions retried after a conflict"),
		metric.WithUnit("{retry}"),
	)

	m.HookFailuresTotal, _ = meter.Int64Counter(
		"orgdir.hooks.failures.total",
		metric.WithDescription("Total number of failed notification, event or audit log hooks"),
		metric.WithUnit("{error}"),
	)

	m.EventsPublished, _ = meter.Int64Counter(
		"orgdir.events.published.total",
		metric.WithDescription("Total number of transfer events delivered to subscribers"),
		metric.WithUnit("{event}"),
	)

	m.EventsDroppedTotal, _ = meter.Int64Counter(
		"orgdir.events.dropped.total",
		metric.WithDescription("Total number of events dropped because a subscriber was slow"),
		metric.WithUnit("{event}"),
	)

	m.ActiveSubscribers, _ = meter.Int64UpDownCounter(
		"orgdir.events.subscribers.active",
		metric.WithDescription("Number of active event subscribers"),
		metric.WithUnit("{subscriber}"),
	)

	return m
}
