package hookup

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports connection-lifecycle counters to Prometheus. A Client
// built with nil Metrics (the default) records nothing — wiring it is
// always an explicit opt-in via SettingsBuilder.Metrics.
type Metrics struct {
	ackOutcomes *prometheus.CounterVec
	reconnects  prometheus.Counter
	throttleResets prometheus.Counter
}

// NewMetrics registers hookup's counters against reg and returns a Metrics
// ready to pass to SettingsBuilder.Metrics. Passing the same reg to two
// Metrics instances panics, matching prometheus.Registerer's own contract.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ackOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookup_ack_outcomes_total",
			Help: "Outcomes of ack-tracked sends, by result; only timed-out (cancelled) sends are counted.",
		}, []string{"result"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookup_reconnects_total",
			Help: "Number of reconnect episodes entered.",
		}),
		throttleResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookup_throttle_resets_total",
			Help: "Number of times the reconnect throttle reset on reaching Open.",
		}),
	}
	reg.MustRegister(m.ackOutcomes, m.reconnects, m.throttleResets)
	return m
}

// recordAckFailed is the only ack outcome Metrics can observe from outside
// the FSM: a successful ack resolves silently inside the ack registry and
// never reaches the client's event stream, so there is nothing here to
// count a success against.
func (m *Metrics) recordAckFailed() {
	if m != nil {
		m.ackOutcomes.WithLabelValues("cancelled").Inc()
	}
}

func (m *Metrics) recordReconnecting() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) recordThrottleReset() {
	if m != nil {
		m.throttleResets.Inc()
	}
}
