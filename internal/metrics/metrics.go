package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/syften-relay/internal/service"
	"github.com/notifyhub/syften-relay/internal/worker"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	BatchesReceived prometheus.Counter
	ItemsReceived   prometheus.Counter
	BatchesRejected *prometheus.CounterVec
	ItemsPublished  prometheus.Counter
	PublishFailures prometheus.Counter
	PublishLatency  prometheus.Histogram
	MessagesHandled *prometheus.CounterVec
	DeliveryLatency prometheus.Histogram

	reg prometheus.Registerer
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syften_batches_received_total",
			Help: "Total number of inbound batches that passed validation.",
		}),
		ItemsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syften_items_received_total",
			Help: "Total number of items in batches that passed validation.",
		}),
		BatchesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syften_batches_rejected_total",
			Help: "Total number of inbound batches rejected before publishing.",
		}, []string{"reason"}),
		ItemsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syften_items_published_total",
			Help: "Total number of items confirmed by the queue.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syften_publish_failures_total",
			Help: "Total number of item publishes the queue did not confirm.",
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "syften_publish_seconds",
			Help:    "Latency of a single item publish, until confirmed by the queue.",
			Buckets: prometheus.DefBuckets,
		}),
		MessagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syften_messages_handled_total",
			Help: "Total number of queue messages handled by the dispatcher, by outcome and reason.",
		}, []string{"outcome", "reason"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "syften_delivery_seconds",
			Help:    "Processing latency from message receipt to channel acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}),
		reg: reg,
	}

	reg.MustRegister(
		m.BatchesReceived,
		m.ItemsReceived,
		m.BatchesRejected,
		m.ItemsPublished,
		m.PublishFailures,
		m.PublishLatency,
		m.MessagesHandled,
		m.DeliveryLatency,
	)

	return m
}

// RegisterQueueDepth exports a gauge that samples depth on every scrape.
// Only the memory driver knows its depth.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "syften_queue_depth",
		Help: "Current number of messages waiting in the in-process queue.",
	}, func() float64 { return float64(depth()) }))
}

// ProducerHooks returns the callbacks expected by service.NewProducer.
// Centralises the prometheus calls so the service stays import-free.
func (m *Metrics) ProducerHooks() service.ProducerHooks {
	return service.ProducerHooks{
		OnBatch: func(items int) {
			m.BatchesReceived.Inc()
			m.ItemsReceived.Add(float64(items))
		},
		OnRejected: func(reason string) {
			m.BatchesRejected.WithLabelValues(reason).Inc()
		},
		OnPublished: func(latency time.Duration) {
			m.ItemsPublished.Inc()
			m.PublishLatency.Observe(latency.Seconds())
		},
		OnPublishFailed: func() {
			m.PublishFailures.Inc()
		},
	}
}

// DispatchHooks returns the callbacks expected by worker.NewDispatcher.
func (m *Metrics) DispatchHooks() worker.DispatchHooks {
	return worker.DispatchHooks{
		OnDelivered: func(latency time.Duration) {
			m.MessagesHandled.WithLabelValues("delivered", "ok").Inc()
			m.DeliveryLatency.Observe(latency.Seconds())
		},
		OnDropped: func(reason string) {
			m.MessagesHandled.WithLabelValues("dropped", reason).Inc()
		},
		OnRetry: func(reason string) {
			m.MessagesHandled.WithLabelValues("retry", reason).Inc()
		},
	}
}
