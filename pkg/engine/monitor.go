package engine

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Monitor is the cross-cutting busy counter. Every sync unit reports when
// it leaves and re-enters idle, so observers can show "N syncs outstanding"
// without tracking individual units.
type Monitor struct {
	inflight atomic.Int64

	gauge   prometheus.Gauge
	periods prometheus.Counter
}

func NewMonitor(reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kite_syncs_inflight",
			Help: "Number of sync units currently running.",
		}),
		periods: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kite_sync_periods_total",
			Help: "Total completed busy periods across all sync units.",
		}),
	}
	reg.MustRegister(m.gauge, m.periods)
	return m
}

func (m *Monitor) SyncStarted(key string) {
	m.inflight.Add(1)
	m.gauge.Inc()
}

func (m *Monitor) SyncFinished(key string) {
	m.inflight.Add(-1)
	m.gauge.Dec()
	m.periods.Inc()
}

func (m *Monitor) Inflight() int64 {
	return m.inflight.Load()
}
