package obs

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing, which is what the Lambda entry points use.
type Metrics struct {
	reg *prometheus.Registry

	OrdersCreated   prometheus.Counter
	OrdersDeleted   prometheus.Counter
	OrdersRejected  prometheus.Counter
	EventsPublished *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	DeadLettered    prometheus.Counter
	EventsArchived  *prometheus.CounterVec
	EventsExpired   prometheus.Counter
	HTTPLatencySec  *prometheus.HistogramVec
}

// NewMetrics registers every collector on a private registry.
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	created := prometheus.NewCounter(prometheus.CounterOpts{Name: "ecommerce_orders_created_total"})
	deleted := prometheus.NewCounter(prometheus.CounterOpts{Name: "ecommerce_orders_deleted_total"})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ecommerce_orders_rejected_total",
		Help: "Order requests aborted because a product did not resolve.",
	})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ecommerce_events_published_total"}, []string{"event_type"})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ecommerce_deliveries_total"}, []string{"subscription", "outcome"})
	dead := prometheus.NewCounter(prometheus.CounterOpts{Name: "ecommerce_messages_dead_lettered_total"})
	archived := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ecommerce_events_archived_total"}, []string{"event_type"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{Name: "ecommerce_events_expired_total"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ecommerce_http_request_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	r.MustRegister(created, deleted, rejected, published, deliveries, dead, archived, expired, latency)
	return &Metrics{
		reg:             r,
		OrdersCreated:   created,
		OrdersDeleted:   deleted,
		OrdersRejected:  rejected,
		EventsPublished: published,
		Deliveries:      deliveries,
		DeadLettered:    dead,
		EventsArchived:  archived,
		EventsExpired:   expired,
		HTTPLatencySec:  latency,
	}
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderCreated() {
	if m != nil {
		m.OrdersCreated.Inc()
	}
}

func (m *Metrics) OrderDeleted() {
	if m != nil {
		m.OrdersDeleted.Inc()
	}
}

func (m *Metrics) OrderRejected() {
	if m != nil {
		m.OrdersRejected.Inc()
	}
}

func (m *Metrics) EventPublished(eventType string) {
	if m != nil {
		m.EventsPublished.WithLabelValues(eventType).Inc()
	}
}

// Delivery records the outcome ("ok", "failed", "filtered") of one delivery.
func (m *Metrics) Delivery(subscription, outcome string) {
	if m != nil {
		m.Deliveries.WithLabelValues(subscription, outcome).Inc()
	}
}

func (m *Metrics) MessageDeadLettered() {
	if m != nil {
		m.DeadLettered.Inc()
	}
}

func (m *Metrics) EventArchived(eventType string) {
	if m != nil {
		m.EventsArchived.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) EventsExpiredAdd(n int) {
	if m != nil && n > 0 {
		m.EventsExpired.Add(float64(n))
	}
}

func (m *Metrics) ObserveHTTP(method string, status int, seconds float64) {
	if m != nil {
		m.HTTPLatencySec.WithLabelValues(method, strconv.Itoa(status)).Observe(seconds)
	}
}
