// Package metrics exposes Reader activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Reader collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesReceived   *prometheus.CounterVec
	recordsProcessed   *prometheus.CounterVec
	recordsFailed      *prometheus.CounterVec
	decodeFailures     *prometheus.CounterVec
	waitTimeouts       *prometheus.CounterVec
	connectionFailures *prometheus.CounterVec
	bufferedMessages   *prometheus.GaugeVec
	waitDuration       *prometheus.HistogramVec
}

// NewMetrics creates and registers the Reader metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Deliveries handed to the delivery buffer.",
		}, []string{"queue"}),
		recordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Records marked processed.",
		}, []string{"queue"}),
		recordsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_failed_total",
			Help:      "Records marked failed.",
		}, []string{"queue"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Message bodies that could not be decoded into a record.",
		}, []string{"queue"}),
		waitTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "GetNextRecord calls that ended without a record.",
		}, []string{"queue"}),
		connectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_failures_total",
			Help:      "Failed connection attempts by stage.",
		}, []string{"queue", "stage"}),
		bufferedMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_messages",
			Help:      "Deliveries waiting in the delivery buffer.",
		}, []string{"queue"}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wait_duration_seconds",
			Help:      "Time GetNextRecord spent waiting on the broker.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"queue"}),
	}

	registry.MustRegister(
		m.messagesReceived,
		m.recordsProcessed,
		m.recordsFailed,
		m.decodeFailures,
		m.waitTimeouts,
		m.connectionFailures,
		m.bufferedMessages,
		m.waitDuration,
		collectors.NewGoCollector(),
	)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordMessageReceived counts one buffered delivery.
func (m *Metrics) RecordMessageReceived(queue string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(queue).Inc()
}

// RecordProcessed counts one record marked processed.
func (m *Metrics) RecordProcessed(queue string) {
	if m == nil {
		return
	}
	m.recordsProcessed.WithLabelValues(queue).Inc()
}

// RecordFailed counts one record marked failed.
func (m *Metrics) RecordFailed(queue string) {
	if m == nil {
		return
	}
	m.recordsFailed.WithLabelValues(queue).Inc()
}

// RecordDecodeFailure counts one undecodable body.
func (m *Metrics) RecordDecodeFailure(queue string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(queue).Inc()
}

// RecordTimeout counts one empty wait.
func (m *Metrics) RecordTimeout(queue string) {
	if m == nil {
		return
	}
	m.waitTimeouts.WithLabelValues(queue).Inc()
}

// RecordConnectionFailure counts one failed connect at stage (dial, channel, topology, qos, consume).
func (m *Metrics) RecordConnectionFailure(queue, stage string) {
	if m == nil {
		return
	}
	m.connectionFailures.WithLabelValues(queue, stage).Inc()
}

// SetBuffered reports the delivery buffer length.
func (m *Metrics) SetBuffered(queue string, count int) {
	if m == nil {
		return
	}
	m.bufferedMessages.WithLabelValues(queue).Set(float64(count))
}

// ObserveWait records how long a wait on the broker took.
func (m *Metrics) ObserveWait(queue string, duration time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(queue).Observe(duration.Seconds())
}
