// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	MessagesReceived *prometheus.CounterVec
	MessageLatency   prometheus.Histogram
	PhaseAdvances    *prometheus.CounterVec
	Deaths           *prometheus.CounterVec
	RejectedActions  prometheus.Counter
	PersistErrors    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// means the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of open websocket connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of active rooms",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound messages by event",
		}, []string{"event"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		PhaseAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_advances_total",
			Help:      "Phase transitions by target phase and trigger",
		}, []string{"phase", "trigger"}),
		Deaths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "night_deaths_total",
			Help:      "Players killed at night by cause",
		}, []string{"cause"}),
		RejectedActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_actions_total",
			Help:      "Night actions dropped by validation",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Failed snapshot or history writes",
		}),
	}

	reg.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.MessagesReceived,
		m.MessageLatency,
		m.PhaseAdvances,
		m.Deaths,
		m.RejectedActions,
		m.PersistErrors,
	)

	return m
}

type Monitor struct {
	metrics      *Metrics
	registerer   prometheus.Registerer
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

func NewMonitor(namespace string, reg prometheus.Registerer) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Monitor{
		metrics:    NewMetrics(namespace, reg),
		registerer: reg,
		startTime:  time.Now(),
	}
}

// Metrics exposes the raw collectors, mainly for tests.
func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Handler serves /metrics and /debug/vars.
func (m *Monitor) Handler() http.Handler {
	// 添加expvar指标
	publishOnce.Do(func() {
		expvar.Publish("uptime", expvar.Func(func() interface{} {
			return time.Since(m.startTime).Seconds()
		}))
		expvar.Publish("requests", expvar.Func(func() interface{} {
			m.mutex.Lock()
			defer m.mutex.Unlock()
			return m.requestCount
		}))
	})

	metrics := promhttp.Handler()
	if g, ok := m.registerer.(prometheus.Gatherer); ok {
		metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}

// expvar panics on duplicate names.
var publishOnce sync.Once

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived(event string) {
	m.metrics.MessagesReceived.WithLabelValues(event).Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) PhaseAdvanced(phase, trigger string) {
	m.metrics.PhaseAdvances.WithLabelValues(phase, trigger).Inc()
}

func (m *Monitor) PlayerDied(cause string) {
	m.metrics.Deaths.WithLabelValues(cause).Inc()
}

func (m *Monitor) ActionRejected() {
	m.metrics.RejectedActions.Inc()
}

func (m *Monitor) PersistFailed() {
	m.metrics.PersistErrors.Inc()
}
