package chat

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	messagesSent    prometheus.Counter
	fanoutEvents    prometheus.Counter
	decryptFailures prometheus.Counter
	wsConnections   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifehub_chat_messages_sent_total",
			Help: "Messages persisted through either delivery path.",
		}),
		fanoutEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifehub_chat_fanout_events_total",
			Help: "Events delivered to live websocket connections.",
		}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifehub_chat_decrypt_failures_total",
			Help: "Stored messages whose ciphertext could not be decrypted.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifehub_chat_ws_connections",
			Help: "Currently connected websocket clients.",
		}),
	}

	reg.MustRegister(m.messagesSent, m.fanoutEvents, m.decryptFailures, m.wsConnections)
	return m
}

func (m *Metrics) RecordMessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) RecordFanout() {
	if m == nil {
		return
	}
	m.fanoutEvents.Inc()
}

func (m *Metrics) RecordDecryptFailure() {
	if m == nil {
		return
	}
	m.decryptFailures.Inc()
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(n))
}
