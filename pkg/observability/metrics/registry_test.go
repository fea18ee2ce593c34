package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T, registry *Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestRegistry_ExposesRuntimeAndHTTPMetrics(t *testing.T) {
	registry := NewRegistry()
	RecordHTTPMetrics(http.MethodGet, "/health", http.StatusOK, 5*time.Millisecond)

	body := scrape(t, registry)
	for _, want := range []string{
		"go_goroutines",
		"go_build_info",
		"mountsync_management_http_requests_total",
		"mountsync_management_http_request_duration_seconds",
		"mountsync_management_http_requests_in_flight",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in scrape output", want)
		}
	}
}

func TestRegistry_RegistersComponentCollectors(t *testing.T) {
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_component_cycles_total",
		Help: "cycles",
	})
	cycles.Add(3)

	registry := NewRegistry(cycles)
	if !strings.Contains(scrape(t, registry), "test_component_cycles_total 3") {
		t.Fatal("expected component collector in scrape output")
	}

	if err := registry.Register(cycles); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if !registry.Unregister(cycles) {
		t.Fatal("expected unregister to succeed")
	}
}

func TestRegistry_MultipleInstances(t *testing.T) {
	first := NewRegistry()
	second := NewRegistry()
	if first.Gatherer() == second.Gatherer() {
		t.Fatal("expected independent gatherers")
	}
}

func TestRecordHTTPMetrics(t *testing.T) {
	before := testutil.ToFloat64(managementRequests.WithLabelValues(http.MethodPost, "/refresh", "202"))
	RecordHTTPMetrics(http.MethodPost, "/refresh", http.StatusAccepted, time.Millisecond)
	RecordHTTPMetrics(http.MethodPost, "/refresh", http.StatusAccepted, time.Millisecond)
	after := testutil.ToFloat64(managementRequests.WithLabelValues(http.MethodPost, "/refresh", "202"))
	if after-before != 2 {
		t.Fatalf("expected two recorded requests, got %v", after-before)
	}

	RecordHTTPMetrics(http.MethodGet, "", http.StatusNotFound, time.Millisecond)
	if testutil.ToFloat64(managementRequests.WithLabelValues(http.MethodGet, "unmatched", "404")) < 1 {
		t.Fatal("expected empty route to be labelled unmatched")
	}
}

func TestInFlightGauge(t *testing.T) {
	base := testutil.ToFloat64(managementInFlight)
	IncrementInFlight()
	IncrementInFlight()
	DecrementInFlight()
	if got := testutil.ToFloat64(managementInFlight) - base; got != 1 {
		t.Fatalf("expected in-flight delta 1, got %v", got)
	}
	DecrementInFlight()
}
