// Package metrics exposes Prometheus collectors for a listener.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pipemsg"

// Result labels for connections_handled_total.
const (
	ResultOK         = "ok"
	ResultReadError  = "read_error"
	ResultWriteError = "write_error"
)

// Listener groups the collectors one listener reports to. The zero value is not
// usable; a nil *Listener is, and records nothing.
type Listener struct {
	accepts          prometheus.Counter
	acceptFailures   prometheus.Counter
	handled          *prometheus.CounterVec
	active           prometheus.Gauge
	dispatchDuration prometheus.Histogram
	state            prometheus.Gauge
}

// NewListener creates the collectors for endpoint and registers them with reg.
// A nil reg creates unregistered collectors.
func NewListener(reg prometheus.Registerer, endpoint string) *Listener {
	f := promauto.With(reg)
	labels := prometheus.Labels{"endpoint": endpoint}

	return &Listener{
		accepts: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "listener",
			Name:        "accepts_total",
			Help:        "Connections accepted.",
			ConstLabels: labels,
		}),
		acceptFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "listener",
			Name:        "accept_failures_total",
			Help:        "Accept attempts that failed, excluding cancellation.",
			ConstLabels: labels,
		}),
		handled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "listener",
			Name:        "connections_handled_total",
			Help:        "Connections fully handled, by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "listener",
			Name:        "active_connections",
			Help:        "Connections currently being handled.",
			ConstLabels: labels,
		}),
		dispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "listener",
			Name:        "dispatch_duration_seconds",
			Help:        "Time spent in the dispatch callback.",
			Buckets:     []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			ConstLabels: labels,
		}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "listener",
			Name:        "state",
			Help:        "Listener state: 0 starting, 1 accepting, 2 handling, 3 stopped, 4 faulted.",
			ConstLabels: labels,
		}),
	}
}

func (m *Listener) Accepted() {
	if m == nil {
		return
	}
	m.accepts.Inc()
	m.active.Inc()
}

func (m *Listener) AcceptFailed() {
	if m == nil {
		return
	}
	m.acceptFailures.Inc()
}

func (m *Listener) Handled(result string) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.handled.WithLabelValues(result).Inc()
}

func (m *Listener) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(d.Seconds())
}

func (m *Listener) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}
