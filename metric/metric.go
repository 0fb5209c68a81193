// Package metric defines the Prometheus metrics for the probe service.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all service-level metrics.
type Metrics struct {
	AnalysisRuns     *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	StepDuration     *prometheus.HistogramVec
	TransportErrors  *prometheus.CounterVec
	LanguagesFound   *prometheus.GaugeVec
	GraphCount       *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		AnalysisRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "skosprobe",
				Subsystem: "analysis",
				Name:      "runs_total",
				Help:      "Analysis runs by outcome (success, failed, superseded)",
			},
			[]string{"outcome"},
		),

		AnalysisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "skosprobe",
				Subsystem: "analysis",
				Name:      "duration_seconds",
				Help:      "Total wall-clock duration of analysis runs",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "skosprobe",
				Subsystem: "analysis",
				Name:      "step_duration_seconds",
				Help:      "Duration of individual probe steps",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"step"},
		),

		TransportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "skosprobe",
				Subsystem: "transport",
				Name:      "errors_total",
				Help:      "Transport failures by classification kind",
			},
			[]string{"kind"},
		),

		LanguagesFound: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "skosprobe",
				Subsystem: "census",
				Name:      "languages",
				Help:      "Distinct label languages detected per endpoint",
			},
			[]string{"endpoint"},
		),

		GraphCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "skosprobe",
				Subsystem: "census",
				Name:      "named_graphs",
				Help:      "Named graphs detected per endpoint (lower bound when capped)",
			},
			[]string{"endpoint"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.AnalysisRuns,
		m.AnalysisDuration,
		m.StepDuration,
		m.TransportErrors,
		m.LanguagesFound,
		m.GraphCount,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveStep records one probe step duration.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	m.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}
