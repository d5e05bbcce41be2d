package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/audit/events", "/audit/events"},
		{"/audit/verify", "/audit/verify"},
		{"/audit/tail", "/audit/tail"},
		{"/metrics", "/metrics"},
		{"/audit/documents/42", "/audit/documents/{id}"},
		{"/audit/documents/42/export", "/audit/documents/{id}/export"},
		{"/audit/documents/42/archive", "/audit/documents/{id}/archive"},
		{"/audit/users/7", "/audit/users/{id}"},
		{"/audit/documents/", "/audit/documents/"},
		{"/unknown/route", "/unknown/route"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// gatherCounterValue sums the samples of a counter family matching the labels.
func gatherCounterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if !metricMatchesLabels(metric, labels) {
				continue
			}
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func metricMatchesLabels(metric *dto.Metric, labels map[string]string) bool {
	have := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		have[pair.GetName()] = pair.GetValue()
	}
	for k, v := range labels {
		if have[k] != v {
			return false
		}
	}
	return true
}

func TestHTTPMetrics_RecordsNormalizedPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"entries":[]}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/audit/documents/12345", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	count := gatherCounterValue(t, reg, MetricHTTPRequestsTotal, map[string]string{
		"method": "GET",
		"path":   "/audit/documents/{id}",
		"status": "200",
	})
	if count != 1 {
		t.Errorf("expected 1 request recorded for normalized path, got %v", count)
	}
}

func TestHTTPMetrics_CapturesRequestSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	body := `{"event_type":"document.served","description":"served"}`
	req := httptest.NewRequest(http.MethodPost, "/audit/events", strings.NewReader(body))
	req.Header.Set("Content-Length", "56")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	count := gatherCounterValue(t, reg, MetricHTTPRequestsTotal, map[string]string{
		"method": "POST",
		"path":   "/audit/events",
		"status": "201",
	})
	if count != 1 {
		t.Errorf("expected 1 request recorded, got %v", count)
	}
}

func TestHTTPMetrics_ExcludesProbeEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() == MetricHTTPRequestsTotal && len(family.GetMetric()) > 0 {
			t.Error("probe endpoints must not be recorded in HTTP metrics")
		}
	}
}

func TestHTTPMetrics_StatusCaptured(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/audit/users/9", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	count := gatherCounterValue(t, reg, MetricHTTPRequestsTotal, map[string]string{
		"method": "GET",
		"path":   "/audit/users/{id}",
		"status": "404",
	})
	if count != 1 {
		t.Errorf("expected 404 recorded for normalized user path, got %v", count)
	}
}

func TestMetricsRegister_Duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := NewMetrics().Register(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
