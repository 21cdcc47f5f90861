// Package metrics exposes pipeline counters and durations to Prometheus.
package metrics

import (
	"time"

	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records ingestion and normalization events. It implements core.Recorder.
type Metrics struct {
	RowsParsed     *prometheus.CounterVec
	RecordsCreated *prometheus.CounterVec
	IngestFailures *prometheus.CounterVec
	Conversions    *prometheus.CounterVec
	PassDuration   prometheus.Histogram
	PassNormalized prometheus.Gauge
}

var _ core.Recorder = (*Metrics)(nil)

// New creates a Metrics instance registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RowsParsed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricetracker_rows_parsed_total",
			Help: "Total number of input rows parsed, by kind",
		}, []string{"kind"}),
		RecordsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricetracker_records_created_total",
			Help: "Total number of records stored, by kind",
		}, []string{"kind"}),
		IngestFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricetracker_ingest_failures_total",
			Help: "Total number of failed ingestion runs, by kind and error code",
		}, []string{"kind", "code"}),
		Conversions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricetracker_conversions_total",
			Help: "Total number of unit and currency conversions, by type and result",
		}, []string{"type", "result"}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricetracker_normalization_pass_duration_seconds",
			Help:    "Duration of normalization passes",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
		PassNormalized: f.NewGauge(prometheus.GaugeOpts{
			Name: "pricetracker_normalization_pass_observations",
			Help: "Observations normalized by the most recent successful pass",
		}),
	}
}

// RowParsed records one parsed input row.
func (m *Metrics) RowParsed(kind core.Kind) {
	m.RowsParsed.WithLabelValues(kind.String()).Inc()
}

// RecordCreated records one stored record.
func (m *Metrics) RecordCreated(kind core.Kind) {
	m.RecordsCreated.WithLabelValues(kind.String()).Inc()
}

// IngestFailed records a run that stopped with the given error code.
func (m *Metrics) IngestFailed(kind core.Kind, code string) {
	m.IngestFailures.WithLabelValues(kind.String(), code).Inc()
}

// Converted records a unit or currency conversion attempt.
func (m *Metrics) Converted(conversion string, err error) {
	result := "ok"
	if err != nil {
		result = core.MapError(err).Code
	}
	m.Conversions.WithLabelValues(conversion, result).Inc()
}

// PassCompleted records a finished normalization pass.
func (m *Metrics) PassCompleted(d time.Duration, observations int, err error) {
	m.PassDuration.Observe(d.Seconds())
	if err == nil {
		m.PassNormalized.Set(float64(observations))
	}
}
