package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/TobiSchelling/dailyreport/internal/report"
)

// Metrics records pipeline runs in a Prometheus registry. A nil *Metrics
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	runs         *prometheus.CounterVec
	lastSuccess  prometheus.Gauge
	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	kpiValue     *prometheus.GaugeVec
	kpiChange    *prometheus.GaugeVec
}

// NewMetrics registers the pipeline collectors in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dailyreport",
			Name:      "runs_total",
			Help:      "Pipeline runs by result.",
		}, []string{"result"}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "dailyreport",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last dispatched report.",
		}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dailyreport",
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"step"}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dailyreport",
			Name:      "step_failures_total",
			Help:      "Failed pipeline steps.",
		}, []string{"step"}),
		kpiValue: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dailyreport",
			Name:      "kpi_value",
			Help:      "Latest reported value per KPI.",
		}, []string{"kpi"}),
		kpiChange: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dailyreport",
			Name:      "kpi_change_percent",
			Help:      "Latest day-over-day change per KPI.",
		}, []string{"kpi"}),
	}
}

func (m *Metrics) observeStep(s StepResult) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(s.Name).Observe(s.Duration.Seconds())
	if s.Err != nil {
		m.stepFailures.WithLabelValues(s.Name).Inc()
	}
}

func (m *Metrics) runFinished(ok bool) {
	if m == nil {
		return
	}
	if !ok {
		m.runs.WithLabelValues("failure").Inc()
		return
	}
	m.runs.WithLabelValues("success").Inc()
	m.lastSuccess.Set(float64(time.Now().Unix()))
}

func (m *Metrics) setKPIs(d *report.Delta) {
	if m == nil || d == nil {
		return
	}
	for _, k := range d.KPIs() {
		m.kpiValue.WithLabelValues(k.Name).Set(k.Current)
		m.kpiChange.WithLabelValues(k.Name).Set(k.Change)
	}
}
