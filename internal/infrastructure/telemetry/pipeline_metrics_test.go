package telemetry_test

import (
	"context"
	"testing"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/leadgen/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestNewPipelineMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	pm, err := telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
		Meter:  meter,
		Logger: zap.NewNop(),
	})

	require.NoError(t, err)
	require.NotNil(t, pm)
}

func TestNewPipelineMetrics_NilMeter(t *testing.T) {
	pm, err := telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
		Logger: zap.NewNop(),
	})

	require.Error(t, err)
	assert.Nil(t, pm)
	assert.Equal(t, telemetry.ErrMeterNil, err)
}

func TestPipelineMetrics_RecordSourceRun(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	pm, err := telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{Meter: meter})
	require.NoError(t, err)

	summary := lead.NewCollectionSummary("fl_sunbiz", "FL")
	require.NoError(t, summary.Transition(lead.SourceStateFetching))
	require.NoError(t, summary.Transition(lead.SourceStateFallback))
	summary.RecordsFetched = 25
	summary.RecordsValidated = 20
	summary.RecordsRejected = 5
	summary.Complete()

	// Should not panic
	pm.RecordSourceRun(context.Background(), summary)
	pm.RecordWritten(context.Background(), lead.KindBusiness, 20)
}

func TestNopPipelineMetrics(t *testing.T) {
	pm := telemetry.NopPipelineMetrics()
	require.NotNil(t, pm)
	pm.RecordWritten(context.Background(), lead.KindLoan, 3)
}
