package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragmcp/internal/document"
)

func TestRecorder_Record_UpdatesPrometheusCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg)

	rec.Record(document.RetrievalMetrics{Strategy: document.StrategyKeyword, Query: "q1", NumResults: 3, LatencyMS: 12})
	rec.Record(document.RetrievalMetrics{Strategy: document.StrategyKeyword, Query: "q2", NumResults: 0, LatencyMS: 8, Errored: true})

	families, err := reg.Gather()
	require.NoError(t, err)

	var calls, errs float64
	for _, mf := range families {
		switch mf.GetName() {
		case "ragmcp_retrieval_calls_total":
			calls = sumCounter(mf)
		case "ragmcp_retrieval_errors_total":
			errs = sumCounter(mf)
		}
	}
	assert.Equal(t, float64(2), calls)
	assert.Equal(t, float64(1), errs)
}

func sumCounter(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func TestRecorder_Summary_UnknownStrategyReturnsZeroValue(t *testing.T) {
	rec := NewRecorder(prometheus.NewRegistry())
	summary := rec.Summary(document.StrategyVector)
	assert.Equal(t, 0, summary.CallCount)
}

func TestRecorder_Summary_AggregatesWindowedCalls(t *testing.T) {
	rec := NewRecorder(prometheus.NewRegistry())
	rec.Record(document.RetrievalMetrics{Strategy: document.StrategyVector, NumResults: 5, LatencyMS: 10})
	rec.Record(document.RetrievalMetrics{Strategy: document.StrategyVector, NumResults: 3, LatencyMS: 20, CacheHit: true})
	rec.Record(document.RetrievalMetrics{Strategy: document.StrategyVector, NumResults: 1, LatencyMS: 30, Errored: true})

	summary := rec.Summary(document.StrategyVector)
	assert.Equal(t, 3, summary.CallCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Equal(t, 1, summary.CacheHits)
	assert.InDelta(t, 20.0, summary.AvgLatencyMS, 0.001)
	assert.InDelta(t, 3.0, summary.AvgResults, 0.001)
}

func TestPercentile_P95OfSortedValues(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.GreaterOrEqual(t, percentile(values, 0.95), 8.0)
}

func TestPercentile_EmptyReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 0.95))
}
