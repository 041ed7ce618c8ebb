package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the driver's Prometheus collectors.
type Metrics struct {
	attempts *prometheus.CounterVec
	lastTick prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicepost",
			Name:      "publish_attempts_total",
			Help:      "Publish attempts by outcome.",
		}, []string{"status"}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voicepost",
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time of the last completed driver tick.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.lastTick)
	}
	return m
}

func (m *Metrics) observeAttempt(status string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(status).Inc()
}

func (m *Metrics) observeTick(now time.Time) {
	if m == nil {
		return
	}
	m.lastTick.Set(float64(now.Unix()))
}
