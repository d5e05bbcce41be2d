package audit

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricAppendsTotal         = "audit_appends_total"
	MetricAppendDuration       = "audit_append_duration_seconds"
	MetricVerificationsTotal   = "audit_verifications_total"
	MetricVerifyEntriesChecked = "audit_verify_entries_checked"
	MetricExportsTotal         = "audit_exports_total"
)

// Verification outcome labels.
const (
	VerifyOutcomeValid   = "valid"
	VerifyOutcomeInvalid = "invalid"
	VerifyOutcomeError   = "error"
)

// Metrics contains Prometheus metrics for ledger operations.
// All operations are thread-safe.
type Metrics struct {
	appendsTotal         *prometheus.CounterVec
	appendDuration       prometheus.Histogram
	verificationsTotal   *prometheus.CounterVec
	verifyEntriesChecked prometheus.Histogram
	exportsTotal         *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register them
// with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		appendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAppendsTotal,
				Help: "Total number of ledger appends by event category and status",
			},
			[]string{"category", "status"},
		),
		appendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricAppendDuration,
				Help:    "Histogram of ledger append duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
		verificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricVerificationsTotal,
				Help: "Total number of chain verifications by outcome",
			},
			[]string{"outcome"},
		),
		verifyEntriesChecked: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricVerifyEntriesChecked,
				Help:    "Histogram of entries examined per chain verification",
				Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
			},
		),
		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricExportsTotal,
				Help: "Total number of trail exports by format",
			},
			[]string{"format"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for registration and testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.appendsTotal,
		m.appendDuration,
		m.verificationsTotal,
		m.verifyEntriesChecked,
		m.exportsTotal,
	}
}

// ObserveAppend records one append attempt with its duration.
func (m *Metrics) ObserveAppend(eventType string, err error, seconds float64) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.appendsTotal.WithLabelValues(EventCategory(eventType), status).Inc()
	m.appendDuration.Observe(seconds)
}

// ObserveVerification records one chain verification outcome.
func (m *Metrics) ObserveVerification(result *VerifyResult, err error) {
	switch {
	case err != nil:
		m.verificationsTotal.WithLabelValues(VerifyOutcomeError).Inc()
	case result.Valid:
		m.verificationsTotal.WithLabelValues(VerifyOutcomeValid).Inc()
		m.verifyEntriesChecked.Observe(float64(result.EntriesChecked))
	default:
		m.verificationsTotal.WithLabelValues(VerifyOutcomeInvalid).Inc()
		m.verifyEntriesChecked.Observe(float64(result.EntriesChecked))
	}
}

// IncExport increments the export counter for a format.
func (m *Metrics) IncExport(format ExportFormat) {
	m.exportsTotal.WithLabelValues(string(format)).Inc()
}

// EventCategory returns the category half of a dotted category.action event
// type, keeping metric label cardinality bounded by the vocabulary's
// categories rather than its full event list.
func EventCategory(eventType string) string {
	if idx := strings.IndexByte(eventType, '.'); idx > 0 {
		return eventType[:idx]
	}
	return "other"
}
