package telemetry

import (
	"context"
	"errors"

	"github.com/leadgen/backend/internal/domain/lead"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when a metrics constructor gets a nil meter
var ErrMeterNil = errors.New("meter cannot be nil")

// PipelineMetrics tracks the collection pipeline: records moving through each
// stage, fallback activations and per-source run durations.
type PipelineMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	recordsFetched   *Counter
	recordsValidated *Counter
	recordsRejected  *Counter
	recordsWritten   *Counter
	fallbackRuns     *Counter
	sourceRunSeconds *Histogram
}

// PipelineMetricsConfig holds configuration for pipeline metrics
type PipelineMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewPipelineMetrics creates a new PipelineMetrics instance
func NewPipelineMetrics(cfg PipelineMetricsConfig) (*PipelineMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PipelineMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error
	if pm.recordsFetched, err = NewCounter(cfg.Meter,
		"leadgen_records_fetched_total",
		"Total raw records fetched from sources",
		"{records}",
	); err != nil {
		return nil, err
	}
	if pm.recordsValidated, err = NewCounter(cfg.Meter,
		"leadgen_records_validated_total",
		"Total records that passed validation",
		"{records}",
	); err != nil {
		return nil, err
	}
	if pm.recordsRejected, err = NewCounter(cfg.Meter,
		"leadgen_records_rejected_total",
		"Total records rejected by validation",
		"{records}",
	); err != nil {
		return nil, err
	}
	if pm.recordsWritten, err = NewCounter(cfg.Meter,
		"leadgen_records_written_total",
		"Total validated records written to storage",
		"{records}",
	); err != nil {
		return nil, err
	}
	if pm.fallbackRuns, err = NewCounter(cfg.Meter,
		"leadgen_fallback_runs_total",
		"Total source runs that fell back to sample data",
		"{runs}",
	); err != nil {
		return nil, err
	}
	if pm.sourceRunSeconds, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "leadgen_source_run_seconds",
		Description: "Duration of one source's collection run",
		Unit:        "s",
		Boundaries:  []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}); err != nil {
		return nil, err
	}

	return pm, nil
}

func sourceAttrs(summary *lead.CollectionSummary) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("source", summary.SourceName),
		attribute.String("jurisdiction", summary.Jurisdiction),
	}
}

// RecordSourceRun records the outcome of one completed source run
func (pm *PipelineMetrics) RecordSourceRun(ctx context.Context, summary *lead.CollectionSummary) {
	attrs := sourceAttrs(summary)

	pm.recordsFetched.Add(ctx, int64(summary.RecordsFetched), attrs...)
	pm.recordsValidated.Add(ctx, int64(summary.RecordsValidated), attrs...)
	pm.recordsRejected.Add(ctx, int64(summary.RecordsRejected), attrs...)
	if summary.FallbackUsed {
		pm.fallbackRuns.Inc(ctx, attrs...)
	}
	if d := summary.Elapsed(); d > 0 {
		pm.sourceRunSeconds.RecordDuration(ctx, d, attrs...)
	}
}

// RecordWritten records rows actually written to one of the warehouse tables
func (pm *PipelineMetrics) RecordWritten(ctx context.Context, kind lead.RecordKind, count int) {
	pm.recordsWritten.Add(ctx, int64(count), attribute.String("table", string(kind)))
}

// NopPipelineMetrics returns metrics bound to a no-op meter, for callers that
// run without a telemetry pipeline
func NopPipelineMetrics() *PipelineMetrics {
	pm, err := NewPipelineMetrics(PipelineMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("leadgen"),
	})
	if err != nil {
		// The no-op meter never fails to create instruments
		panic(err)
	}
	return pm
}
