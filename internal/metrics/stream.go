package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics holds Prometheus metrics for streaming sessions. It
// satisfies stream.Observer.
type StreamMetrics struct {
	ConnectAttempts *prometheus.CounterVec
	Closes          *prometheus.CounterVec
	Messages        *prometheus.CounterVec
	ParseErrors     *prometheus.CounterVec
	AuthFailures    *prometheus.CounterVec
	State           *prometheus.GaugeVec
}

// NewStreamMetrics creates and registers stream metrics on the given registry.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connect_attempts_total",
			Help:      "Total number of websocket connection attempts.",
		}, []string{"fragment"}),
		Closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "closes_total",
			Help:      "Total number of websocket closures by close code.",
		}, []string{"fragment", "code"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Total number of inbound messages by kind.",
		}, []string{"fragment", "kind"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "parse_errors_total",
			Help:      "Total number of inbound messages dropped as malformed.",
		}, []string{"fragment"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "auth_failures_total",
			Help:      "Total number of rejected handshakes.",
		}, []string{"fragment"}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Current session state (0 disconnected, 1 connecting, 2 awaiting ack, 3 streaming, 4 rejected).",
		}, []string{"fragment"}),
	}

	reg.MustRegister(m.ConnectAttempts, m.Closes, m.Messages, m.ParseErrors, m.AuthFailures, m.State)
	return m
}

func (m *StreamMetrics) ConnectAttempt(fragment string) {
	m.ConnectAttempts.WithLabelValues(fragment).Inc()
}

func (m *StreamMetrics) Closed(fragment string, code int) {
	m.Closes.WithLabelValues(fragment, strconv.Itoa(code)).Inc()
}

func (m *StreamMetrics) Message(fragment, kind string) {
	m.Messages.WithLabelValues(fragment, kind).Inc()
}

func (m *StreamMetrics) ParseError(fragment string) {
	m.ParseErrors.WithLabelValues(fragment).Inc()
}

func (m *StreamMetrics) AuthFailure(fragment string) {
	m.AuthFailures.WithLabelValues(fragment).Inc()
}

func (m *StreamMetrics) StateChanged(fragment string, state int) {
	m.State.WithLabelValues(fragment).Set(float64(state))
}
