package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "gateway"

// Metrics holds the gateway collectors.
type Metrics struct {
	shardState       *prometheus.GaugeVec
	reconnects       *prometheus.CounterVec
	zombies          *prometheus.CounterVec
	heartbeatLatency *prometheus.HistogramVec
	dispatches       *prometheus.CounterVec
	sessionStarts    *prometheus.CounterVec
	admissionWait    prometheus.Histogram
	outboundRejected *prometheus.CounterVec
	eventsDropped    prometheus.Counter
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		shardState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shard_state",
			Help:      "Current connection state per shard (1 for the active state)",
		}, []string{"shard", "state"}),

		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Connection teardowns followed by a reconnect, by reason",
		}, []string{"shard", "reason"}),

		zombies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zombied_connections_total",
			Help:      "Connections replaced after a missed heartbeat ack",
		}, []string{"shard"}),

		heartbeatLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "heartbeat_latency_seconds",
			Help:      "Time between a heartbeat and its acknowledgement",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"shard"}),

		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatch events received, by event name",
		}, []string{"event"}),

		sessionStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_starts_total",
			Help:      "Successful handshakes, by kind (identify or resume)",
		}, []string{"kind"}),

		admissionWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_wait_seconds",
			Help:      "Time a shard waited for an identify slot",
			Buckets:   []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60, 120},
		}),

		outboundRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_rejected_total",
			Help:      "Outbound commands rejected before queuing",
		}, []string{"reason"}),

		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the consumer channel was full",
		}),
	}
}

// SetShardState marks state as the only active state of shard.
func (m *Metrics) SetShardState(shard int, state string, all []string) {
	if m == nil {
		return
	}
	id := strconv.Itoa(shard)
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.shardState.WithLabelValues(id, s).Set(v)
	}
}

// IncReconnect counts a reconnect of shard for reason.
func (m *Metrics) IncReconnect(shard int, reason string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(strconv.Itoa(shard), reason).Inc()
}

// IncZombie counts a zombied connection.
func (m *Metrics) IncZombie(shard int) {
	if m == nil {
		return
	}
	m.zombies.WithLabelValues(strconv.Itoa(shard)).Inc()
}

// ObserveHeartbeatLatency records one heartbeat round trip.
func (m *Metrics) ObserveHeartbeatLatency(shard int, d time.Duration) {
	if m == nil {
		return
	}
	m.heartbeatLatency.WithLabelValues(strconv.Itoa(shard)).Observe(d.Seconds())
}

// IncDispatch counts a dispatch event.
func (m *Metrics) IncDispatch(name string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(name).Inc()
}

// IncSessionStart counts a completed identify or resume.
func (m *Metrics) IncSessionStart(kind string) {
	if m == nil {
		return
	}
	m.sessionStarts.WithLabelValues(kind).Inc()
}

// ObserveAdmissionWait records how long a shard waited for admission.
func (m *Metrics) ObserveAdmissionWait(d time.Duration) {
	if m == nil {
		return
	}
	m.admissionWait.Observe(d.Seconds())
}

// IncOutboundRejected counts a rejected outbound command.
func (m *Metrics) IncOutboundRejected(reason string) {
	if m == nil {
		return
	}
	m.outboundRejected.WithLabelValues(reason).Inc()
}

// AddEventsDropped adds n dropped events.
func (m *Metrics) AddEventsDropped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDropped.Add(float64(n))
}
