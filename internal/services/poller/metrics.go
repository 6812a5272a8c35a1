package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the poller's operational counters. A nil *Metrics is
// valid and records nothing, which keeps tests quiet.
type Metrics struct {
	cyclesTotal   prometheus.Counter
	cycleFailures prometheus.Counter
	cycleSeconds  prometheus.Histogram
	relogins      prometheus.Counter
	writes        *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bayrol_poll_cycles_total",
			Help: "Poll cycles attempted.",
		}),
		cycleFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bayrol_poll_cycle_failures_total",
			Help: "Poll cycles that exhausted all attempts.",
		}),
		cycleSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bayrol_poll_cycle_duration_seconds",
			Help:    "Wall-clock duration of poll cycles.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		relogins: factory.NewCounter(prometheus.CounterOpts{
			Name: "bayrol_relogins_total",
			Help: "Re-login attempts triggered by empty data fetches.",
		}),
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bayrol_setting_writes_total",
			Help: "Settings writes by outcome.",
		}, []string{"result"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bayrol_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll cycle.",
		}),
	}
}

func (m *Metrics) ObserveCycle(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.cyclesTotal.Inc()
	m.cycleSeconds.Observe(d.Seconds())
	if ok {
		m.lastSuccess.SetToCurrentTime()
	} else {
		m.cycleFailures.Inc()
	}
}

func (m *Metrics) CountRelogin() {
	if m == nil {
		return
	}
	m.relogins.Inc()
}

func (m *Metrics) CountWrite(result WriteResult) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(result.String()).Inc()
}
