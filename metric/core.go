package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the publish client metrics. Every series carries a "client" label
// so several clients can share one registry.
type Metrics struct {
	Published       *prometheus.CounterVec
	Delivered       *prometheus.CounterVec
	PublishFailures *prometheus.CounterVec
	OverflowDrops   *prometheus.CounterVec
	Reconnects      *prometheus.CounterVec
	SessionEvents   *prometheus.CounterVec

	ConnectionState *prometheus.GaugeVec
	RetryState      *prometheus.GaugeVec
	QueueDepth      *prometheus.GaugeVec

	DeliveryDuration *prometheus.HistogramVec
}

func newCounterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edgepub",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{"client"}, labels...))
}

func newGaugeVec(subsystem, name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "edgepub",
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, []string{"client"})
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		Published:       newCounterVec("publish", "accepted_total", "Total number of messages accepted by Publish"),
		Delivered:       newCounterVec("publish", "delivered_total", "Total number of messages acknowledged by the backend"),
		PublishFailures: newCounterVec("publish", "failures_total", "Total number of failed delivery attempts", "kind"),
		OverflowDrops:   newCounterVec("publish", "overflow_drops_total", "Total number of messages evicted on overflow"),
		Reconnects:      newCounterVec("session", "reconnects_total", "Total number of reconnections", "trigger"),
		SessionEvents:   newCounterVec("session", "events_total", "Total number of session lifecycle events", "event"),

		ConnectionState: newGaugeVec("session", "state",
			"Connection state (0=disconnected, 1=connecting, 2=connected)"),
		RetryState: newGaugeVec("publish", "consecutive_failures",
			"Consecutive delivery failures since the last success"),
		QueueDepth: newGaugeVec("publish", "queue_depth", "Messages waiting for delivery"),

		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edgepub",
			Subsystem: "publish",
			Name:      "delivery_duration_seconds",
			Help:      "Time from send to backend acknowledgement",
			Buckets:   prometheus.DefBuckets,
		}, []string{"client"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Published,
		m.Delivered,
		m.PublishFailures,
		m.OverflowDrops,
		m.Reconnects,
		m.SessionEvents,
		m.ConnectionState,
		m.RetryState,
		m.QueueDepth,
		m.DeliveryDuration,
	}
}

// RecordPublished increments the accepted counter and sets the queue depth
func (m *Metrics) RecordPublished(client string, depth int) {
	m.Published.WithLabelValues(client).Inc()
	m.QueueDepth.WithLabelValues(client).Set(float64(depth))
}

// RecordDelivered records an acknowledged delivery
func (m *Metrics) RecordDelivered(client string, took time.Duration, depth int) {
	m.Delivered.WithLabelValues(client).Inc()
	m.DeliveryDuration.WithLabelValues(client).Observe(took.Seconds())
	m.QueueDepth.WithLabelValues(client).Set(float64(depth))
	m.RetryState.WithLabelValues(client).Set(0)
}

// RecordPublishFailure records a failed delivery attempt
func (m *Metrics) RecordPublishFailure(client, kind string, consecutive int64) {
	m.PublishFailures.WithLabelValues(client, kind).Inc()
	m.RetryState.WithLabelValues(client).Set(float64(consecutive))
}

// RecordOverflowDrop records an evicted message
func (m *Metrics) RecordOverflowDrop(client string) {
	m.OverflowDrops.WithLabelValues(client).Inc()
}

// RecordReconnect records a reconnection, trigger is "transport" or "forced"
func (m *Metrics) RecordReconnect(client, trigger string) {
	m.Reconnects.WithLabelValues(client, trigger).Inc()
}

// RecordSessionEvent counts a lifecycle event by name
func (m *Metrics) RecordSessionEvent(client, event string) {
	m.SessionEvents.WithLabelValues(client, event).Inc()
}

// RecordConnectionState sets the connection state gauge
func (m *Metrics) RecordConnectionState(client string, state int) {
	m.ConnectionState.WithLabelValues(client).Set(float64(state))
}
