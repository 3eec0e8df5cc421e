// Package metrics holds the Prometheus collectors shared by the analysis
// pipeline. Collectors register once per process on the default registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics for the classification pipeline.
//
//   - contextanalyzer_analyses_total{source}
//   - contextanalyzer_analysis_duration_seconds{source}
//   - contextanalyzer_llm_failures_total{kind}
//   - contextanalyzer_cache_lookups_total{cache,outcome}
//   - contextanalyzer_embedding_requests_total{outcome}
//   - contextanalyzer_reference_lookups_total{source,outcome}
type Metrics struct {
	AnalysesTotal         *prometheus.CounterVec
	AnalysisDuration      *prometheus.HistogramVec
	LLMFailuresTotal      *prometheus.CounterVec
	CacheLookupsTotal     *prometheus.CounterVec
	EmbeddingRequests     *prometheus.CounterVec
	ReferenceLookupsTotal *prometheus.CounterVec
}

// New returns the process-wide metrics, registering them on first use.
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			AnalysesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "contextanalyzer",
					Name:      "analyses_total",
					Help:      "Hybrid analyses completed, by result source",
				},
				[]string{"source"},
			),
			AnalysisDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "contextanalyzer",
					Name:      "analysis_duration_seconds",
					Help:      "Duration of hybrid analyses in seconds",
					Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
				},
				[]string{"source"},
			),
			LLMFailuresTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "contextanalyzer",
					Name:      "llm_failures_total",
					Help:      "LLM classification failures, by error kind",
				},
				[]string{"kind"},
			),
			CacheLookupsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "contextanalyzer",
					Name:      "cache_lookups_total",
					Help:      "Cache lookups by cache name and outcome",
				},
				[]string{"cache", "outcome"}, // hit, miss, api, cache_expired, evicted
			),
			EmbeddingRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "contextanalyzer",
					Name:      "embedding_requests_total",
					Help:      "Embedding requests by outcome",
				},
				[]string{"outcome"}, // cached, computed, error
			),
			ReferenceLookupsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "contextanalyzer",
					Name:      "reference_lookups_total",
					Help:      "Live reference data lookups by data source and outcome",
				},
				[]string{"source", "outcome"},
			),
		}
	})
	return globalMetrics
}

// ObserveAnalysis records one completed analysis.
func (m *Metrics) ObserveAnalysis(source string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(source).Inc()
	m.AnalysisDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) LLMFailure(kind string) {
	if m == nil {
		return
	}
	m.LLMFailuresTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) CacheLookup(cache, outcome string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(cache, outcome).Inc()
}

func (m *Metrics) Embedding(outcome string) {
	if m == nil {
		return
	}
	m.EmbeddingRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReferenceLookup(source, outcome string) {
	if m == nil {
		return
	}
	m.ReferenceLookupsTotal.WithLabelValues(source, outcome).Inc()
}
