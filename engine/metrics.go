package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "seedkeeper"

// Metrics exposes pass results to prometheus
type Metrics struct {
	PassTotal       *prometheus.CounterVec
	PassDuration    prometheus.Histogram
	ActionTotal     *prometheus.CounterVec
	ErrorTotal      prometheus.Counter
	LastSuccess     prometheus.Gauge
	TorrentsTracked prometheus.Gauge
}

// NewMetrics registers the pass metrics with r
func NewMetrics(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		PassTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pass",
			Name:      "total",
			Help:      "Total number of passes by result",
		}, []string{"result", "dry_run"}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pass",
			Name:      "duration_seconds",
			Help:      "Duration of completed passes",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ActionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pass",
			Name:      "action_total",
			Help:      "Total number of actions taken by passes",
		}, []string{"action"}),
		ErrorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pass",
			Name:      "error_total",
			Help:      "Total number of recoverable errors seen by passes",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pass",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last pass that completed",
		}),
		TorrentsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "torrents",
			Help:      "Number of torrents seen by the last pass",
		}),
	}

	r.MustRegister(m.PassTotal, m.PassDuration, m.ActionTotal, m.ErrorTotal, m.LastSuccess, m.TorrentsTracked)
	return m
}

func (m *Metrics) observe(s *Summary, err error) {
	if m == nil {
		return
	}

	dryRun := "false"
	if s.DryRun {
		dryRun = "true"
	}
	if err != nil {
		m.PassTotal.WithLabelValues("failed", dryRun).Inc()
		return
	}

	m.PassTotal.WithLabelValues("completed", dryRun).Inc()
	m.PassDuration.Observe(s.Duration().Seconds())
	m.LastSuccess.Set(float64(s.FinishedAt.Unix()))
	m.TorrentsTracked.Set(float64(s.Torrents))
	m.ErrorTotal.Add(float64(len(s.Errors)))
	if s.DryRun {
		return
	}
	for action, n := range s.Actions() {
		m.ActionTotal.WithLabelValues(action).Add(float64(n))
	}
}
