package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the messaging counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent        *prometheus.CounterVec
	broadcastDeliveries *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	wsSessions          prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_messages_sent_total",
				Help: "Total number of persisted messages",
			},
			[]string{"type"},
		),
		broadcastDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_broadcast_deliveries_total",
				Help: "Realtime pushes to sessions by outcome",
			},
			[]string{"result"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatcore_notifications_total",
				Help: "Notification decisions by outcome",
			},
			[]string{"result"},
		),
		wsSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatcore_ws_sessions",
			Help: "Currently connected websocket sessions",
		}),
	}
	m.registry.MustRegister(
		m.messagesSent,
		m.broadcastDeliveries,
		m.notifications,
		m.wsSessions,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) MessageSent(messageType string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(messageType).Inc()
}

func (m *Metrics) BroadcastDelivery(result string) {
	if m == nil {
		return
	}
	m.broadcastDeliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.wsSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.wsSessions.Dec()
}
