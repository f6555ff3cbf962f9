package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics counts cart/order lifecycle operations.
type CartMetrics struct {
	linesAdded      prometheus.Counter
	linesRemoved    prometheus.Counter
	ordersFinalized prometheus.Counter
	ordersFulfilled prometheus.Counter
	finalizeFailed  prometheus.Counter

	finalizeDuration prometheus.Histogram
}

func New() *CartMetrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &CartMetrics{
		linesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shoplist_cart_lines_added_total",
			Help: "Total number of cart lines added",
		}),
		linesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shoplist_cart_lines_removed_total",
			Help: "Total number of cart lines removed",
		}),
		ordersFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shoplist_orders_finalized_total",
			Help: "Total number of carts finalized into orders",
		}),
		ordersFulfilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shoplist_orders_fulfilled_total",
			Help: "Total number of orders marked delivered or picked up",
		}),
		finalizeFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shoplist_finalize_failed_total",
			Help: "Total number of finalize attempts that aborted",
		}),
		finalizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shoplist_finalize_duration_seconds",
			Help:    "Duration of finalize transactions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.linesAdded, m.linesRemoved, m.ordersFinalized,
		m.ordersFulfilled, m.finalizeFailed, m.finalizeDuration,
	)

	return m
}

func (m *CartMetrics) LineAdded() {
	if m != nil {
		m.linesAdded.Inc()
	}
}

func (m *CartMetrics) LineRemoved() {
	if m != nil {
		m.linesRemoved.Inc()
	}
}

func (m *CartMetrics) OrderFinalized(took time.Duration) {
	if m != nil {
		m.ordersFinalized.Inc()
		m.finalizeDuration.Observe(took.Seconds())
	}
}

func (m *CartMetrics) FinalizeFailed() {
	if m != nil {
		m.finalizeFailed.Inc()
	}
}

func (m *CartMetrics) OrderFulfilled() {
	if m != nil {
		m.ordersFulfilled.Inc()
	}
}
