package smartaccess

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const smartAccessInstrumentationName = "github.com/fyrsmithlabs/sentra/internal/smartaccess"

// Metrics holds Smart Access counters.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	events   metric.Int64Counter
	flagged  metric.Int64Counter
	degraded metric.Int64Counter
	scores   metric.Float64Histogram
}

// NewMetrics creates a Metrics instance for Smart Access.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(smartAccessInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.events, err = m.meter.Int64Counter(
		"sentra.smartaccess.events_total",
		metric.WithDescription("Total behavior events collected, labeled by stored/scored outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		m.logger.Warn("failed to create events counter", zap.Error(err))
	}

	m.flagged, err = m.meter.Int64Counter(
		"sentra.smartaccess.flagged_total",
		metric.WithDescription("Total events flagged as anomalous"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		m.logger.Warn("failed to create flagged counter", zap.Error(err))
	}

	m.degraded, err = m.meter.Int64Counter(
		"sentra.smartaccess.degraded_total",
		metric.WithDescription("Total operations degraded to a neutral result by a store outage, labeled by operation"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create degraded counter", zap.Error(err))
	}

	m.scores, err = m.meter.Float64Histogram(
		"sentra.smartaccess.similarity_score",
		metric.WithDescription("Cosine similarity of scored events against the identity baseline"),
		metric.WithExplicitBucketBoundaries(-1, -0.5, 0, 0.25, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1),
	)
	if err != nil {
		m.logger.Warn("failed to create score histogram", zap.Error(err))
	}
}

// RecordCollect records a collect outcome.
func (m *Metrics) RecordCollect(ctx context.Context, stored, scored bool) {
	if m == nil || m.events == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("stored", stored),
		attribute.Bool("scored", scored),
	))
}

// RecordScore records a similarity score and whether it was flagged.
func (m *Metrics) RecordScore(ctx context.Context, score float64, flagged bool) {
	if m == nil {
		return
	}
	if m.scores != nil {
		m.scores.Record(ctx, score)
	}
	if flagged && m.flagged != nil {
		m.flagged.Add(ctx, 1)
	}
}

// RecordDegraded records a store-outage degradation.
func (m *Metrics) RecordDegraded(ctx context.Context, operation string) {
	if m == nil || m.degraded == nil {
		return
	}
	m.degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}
