package hubsocket

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultMetricsNamespace = "hubsocket"

// MetricsConfig configures the transport's Prometheus collectors.
type MetricsConfig struct {
	// Namespace prefixes every metric. Defaults to "hubsocket".
	Namespace string
	// ConstLabels are added to every metric.
	ConstLabels map[string]string
	// Registerer receives the collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Metrics holds the transport's collectors. A nil *Metrics records nothing.
type Metrics struct {
	framesReceived    prometheus.Counter
	framesSent        prometheus.Counter
	decodeErrors      prometheus.Counter
	connectErrors     prometheus.Counter
	reconnectAttempts prometheus.Counter
	reconnects        prometheus.Counter
	sessionStops      *prometheus.CounterVec
	state             *prometheus.GaugeVec
}

// NewMetrics creates and registers the transport's collectors.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultMetricsNamespace
	}
	labels := prometheus.Labels(cfg.ConstLabels)

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "transport", Name: name, Help: help, ConstLabels: labels,
		})
	}

	m := &Metrics{
		framesReceived:    counter("frames_received_total", "Number of text frames received, heartbeats included."),
		framesSent:        counter("frames_sent_total", "Number of text frames written to the socket."),
		decodeErrors:      counter("decode_errors_total", "Number of inbound frames dropped because they could not be decoded."),
		connectErrors:     counter("connect_errors_total", "Number of failed socket opening attempts."),
		reconnectAttempts: counter("reconnect_attempts_total", "Number of reconnect attempts."),
		reconnects:        counter("reconnects_total", "Number of successful reconnects."),
		sessionStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "transport", Name: "session_stops_total",
			Help: "Number of session stops by reason.", ConstLabels: labels,
		}, []string{"reason"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "transport", Name: "sessions",
			Help: "Number of live sessions per connection state.", ConstLabels: labels,
		}, []string{"state"}),
	}

	for _, c := range []prometheus.Collector{
		m.framesReceived, m.framesSent, m.decodeErrors, m.connectErrors,
		m.reconnectAttempts, m.reconnects, m.sessionStops, m.state,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) frameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) frameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

func (m *Metrics) decodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) connectError() {
	if m != nil {
		m.connectErrors.Inc()
	}
}

func (m *Metrics) reconnectAttempt() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}

func (m *Metrics) reconnected() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) sessionStopped(reason string) {
	if m != nil {
		m.sessionStops.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) stateChanged(old, new State) {
	if m != nil {
		if old != Disconnected {
			m.state.WithLabelValues(old.String()).Dec()
		}
		if new != Disconnected {
			m.state.WithLabelValues(new.String()).Inc()
		}
	}
}
