package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for checkout and order lifecycle
// observability. Shop-level labels are avoided to keep cardinality bounded.
type BusinessMetrics struct {
	// Checkout
	CheckoutCompleted *prometheus.CounterVec
	CheckoutFailed    *prometheus.CounterVec
	CheckoutShops     prometheus.Histogram
	CheckoutDuration  *prometheus.HistogramVec
	PartialCommits    prometheus.Counter
	WriteRetries      prometheus.Counter

	// Orders
	OrdersCreated        *prometheus.CounterVec
	OrderValue           *prometheus.HistogramVec
	OrderItemCount       prometheus.Histogram
	OrderStatusChanges   *prometheus.CounterVec
	PaymentStatusChanges *prometheus.CounterVec

	// Outbox relay
	EventsPublished *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	RelayBatchSize  prometheus.Histogram
}

// NewBusinessMetrics creates and registers all business metrics
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	return NewBusinessMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewBusinessMetricsWith registers the metrics on reg. Tests pass a fresh
// registry so repeated construction does not panic on duplicate registration.
func NewBusinessMetricsWith(namespace string, reg prometheus.Registerer) *BusinessMetrics {
	if namespace == "" {
		namespace = "cakery"
	}

	subsystem := "business"
	factory := promauto.With(reg)

	return &BusinessMetrics{
		// =======================================================================
		// Checkout
		// =======================================================================
		CheckoutCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_completed_total",
				Help:      "Total successful checkouts",
			},
			[]string{"payment_type"}, // payment_type: card, cod
		),
		CheckoutFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_failed_total",
				Help:      "Total failed checkouts by failure kind",
			},
			[]string{"kind"},
		),
		CheckoutShops: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_shops",
				Help:      "Number of shops (and therefore orders) per checkout",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 12},
			},
		),
		CheckoutDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_duration_seconds",
				Help:      "Checkout processing duration",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"outcome"}, // outcome: success, failure
		),
		PartialCommits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_partial_commits_total",
				Help:      "Checkouts that failed after at least one order was persisted",
			},
		),
		WriteRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_write_retries_total",
				Help:      "Order writes retried after a transient store failure",
			},
		),

		// =======================================================================
		// Orders
		// =======================================================================
		OrdersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders created",
			},
			[]string{"payment_type"},
		),
		OrderValue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value_minor_units",
				Help:      "Order value distribution in the smallest currency unit",
				Buckets:   []float64{100000, 250000, 500000, 750000, 1000000, 1500000, 2500000, 5000000},
			},
			[]string{"payment_type"},
		),
		OrderItemCount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_item_count",
				Help:      "Number of items per order",
				Buckets:   []float64{1, 2, 3, 5, 10, 15, 20},
			},
		),
		OrderStatusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_status_changes_total",
				Help:      "Order status transitions",
			},
			[]string{"from", "to"},
		),
		PaymentStatusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_status_changes_total",
				Help:      "Payment status transitions",
			},
			[]string{"from", "to"},
		),

		// =======================================================================
		// Outbox relay
		// =======================================================================
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_published_total",
				Help:      "Order events published to the broker",
			},
			[]string{"event_type"},
		),
		EventsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_failed_total",
				Help:      "Order events that failed to publish",
			},
			[]string{"event_type"},
		),
		RelayBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "outbox_relay_batch_size",
				Help:      "Events claimed per relay tick",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
	}
}

// Business is the global business metrics instance.
// Nil until InitBusinessMetrics is called; callers check before use.
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}
