package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsEnd(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newHTTPMetrics(registry, ProviderConfig{
		ServiceName: "resumeforge",
		Environment: "test",
	})

	metrics.Begin()
	metrics.End("POST", "/v1/subscriptions", 201, 30*time.Millisecond)
	metrics.Begin()
	metrics.End("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("POST", "/v1/subscriptions", "201")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched route fallback, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.inFlight); got != 0 {
		t.Fatalf("expected in-flight gauge back to 0, got %v", got)
	}
}
