// Package telemetry records per-strategy retrieval metrics: Prometheus
// counters/histograms for an optional /metrics scrape endpoint, plus a
// bounded in-process window per strategy backing the metrics:// MCP
// resource.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aman-cerp/ragmcp/internal/document"
)

// windowCapacity is how many recent calls are retained per strategy for
// the metrics:// resource's recent-latency view.
const windowCapacity = 500

// Recorder implements retrieval.MetricsRecorder, fanning each completed
// call out to Prometheus and to a per-strategy in-memory window.
type Recorder struct {
	mu      sync.Mutex
	windows map[document.StrategyName]*CircularBuffer[document.RetrievalMetrics]

	calls      *prometheus.CounterVec
	errors     *prometheus.CounterVec
	cacheHits  *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	numResults *prometheus.HistogramVec
}

// NewRecorder builds a Recorder and registers its collectors with reg.
// Passing prometheus.NewRegistry() (rather than the global default
// registry) keeps repeated construction in tests collision-free.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		windows: make(map[document.StrategyName]*CircularBuffer[document.RetrievalMetrics]),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragmcp",
			Subsystem: "retrieval",
			Name:      "calls_total",
			Help:      "Total retrieval calls per strategy.",
		}, []string{"strategy"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragmcp",
			Subsystem: "retrieval",
			Name:      "errors_total",
			Help:      "Total retrieval calls that errored per strategy.",
		}, []string{"strategy"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragmcp",
			Subsystem: "retrieval",
			Name:      "cache_hits_total",
			Help:      "Total retrieval calls served from cache per strategy.",
		}, []string{"strategy"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragmcp",
			Subsystem: "retrieval",
			Name:      "latency_milliseconds",
			Help:      "Retrieval latency in milliseconds per strategy.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"strategy"}),
		numResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragmcp",
			Subsystem: "retrieval",
			Name:      "results_count",
			Help:      "Number of documents returned per retrieval call.",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 50},
		}, []string{"strategy"}),
	}

	if reg != nil {
		reg.MustRegister(r.calls, r.errors, r.cacheHits, r.latency, r.numResults)
	}
	return r
}

// Record implements retrieval.MetricsRecorder.
func (r *Recorder) Record(m document.RetrievalMetrics) {
	strategy := string(m.Strategy)
	r.calls.WithLabelValues(strategy).Inc()
	r.latency.WithLabelValues(strategy).Observe(m.LatencyMS)
	r.numResults.WithLabelValues(strategy).Observe(float64(m.NumResults))
	if m.Errored {
		r.errors.WithLabelValues(strategy).Inc()
	}
	if m.CacheHit {
		r.cacheHits.WithLabelValues(strategy).Inc()
	}

	r.mu.Lock()
	w, ok := r.windows[m.Strategy]
	if !ok {
		w = NewCircularBuffer[document.RetrievalMetrics](windowCapacity)
		r.windows[m.Strategy] = w
	}
	w.Add(m)
	r.mu.Unlock()
}

// StrategySummary aggregates the recent window for one strategy, the
// shape surfaced by the metrics://{strategy} resource.
type StrategySummary struct {
	Strategy     document.StrategyName
	CallCount    int
	ErrorCount   int
	CacheHits    int
	AvgLatencyMS float64
	P95LatencyMS float64
	AvgResults   float64
}

// Summary computes a StrategySummary over whatever window of recent
// calls is retained for strategy; an unknown strategy yields a
// zero-value summary with CallCount 0.
func (r *Recorder) Summary(strategy document.StrategyName) StrategySummary {
	r.mu.Lock()
	w, ok := r.windows[strategy]
	r.mu.Unlock()

	summary := StrategySummary{Strategy: strategy}
	if !ok {
		return summary
	}

	events := w.Items()
	summary.CallCount = len(events)
	if len(events) == 0 {
		return summary
	}

	latencies := make([]float64, 0, len(events))
	var sumLatency, sumResults float64
	for _, e := range events {
		sumLatency += e.LatencyMS
		sumResults += float64(e.NumResults)
		latencies = append(latencies, e.LatencyMS)
		if e.Errored {
			summary.ErrorCount++
		}
		if e.CacheHit {
			summary.CacheHits++
		}
	}
	summary.AvgLatencyMS = sumLatency / float64(len(events))
	summary.AvgResults = sumResults / float64(len(events))
	summary.P95LatencyMS = percentile(latencies, 0.95)
	return summary
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
