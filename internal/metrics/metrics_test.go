package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return pb.GetCounter().GetValue()
}

func TestNewIsSingleton(t *testing.T) {
	if New() != New() {
		t.Fatal("New must return the same instance")
	}
}

func TestRecorders(t *testing.T) {
	m := New()

	before := counterValue(t, m.CacheLookupsTotal.WithLabelValues("test", "hit"))
	m.CacheLookup("test", "hit")
	if got := counterValue(t, m.CacheLookupsTotal.WithLabelValues("test", "hit")); got != before+1 {
		t.Fatalf("cache lookup counter = %f, want %f", got, before+1)
	}

	before = counterValue(t, m.AnalysesTotal.WithLabelValues("pattern"))
	m.ObserveAnalysis("pattern", 10*time.Millisecond)
	if got := counterValue(t, m.AnalysesTotal.WithLabelValues("pattern")); got != before+1 {
		t.Fatalf("analyses counter = %f, want %f", got, before+1)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAnalysis("llm", time.Second)
	m.LLMFailure("upstream")
	m.CacheLookup("x", "miss")
	m.Embedding("error")
	m.ReferenceLookup("regions", "api")
}
