package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments exposed by the matching
// engine: one counter per mutating operation family, a depth gauge per
// side, and a latency histogram around the matching walk. Trimmed down
// from a larger trading-platform metrics set to just what pkg/book's
// counters can actually feed.
type Metrics struct {
	registry *prometheus.Registry

	ordersTotal     prometheus.Counter
	tradesTotal     prometheus.Counter
	volumeTotal     prometheus.Counter
	rejectionsTotal prometheus.Counter
	cancelsTotal    prometheus.Counter

	orderBookDepth  *prometheus.GaugeVec
	matchingLatency prometheus.Histogram
}

// New constructs and registers every instrument under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ordersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Total number of orders accepted onto the book.",
		}),
		tradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Total number of trades executed.",
		}),
		volumeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_total",
			Help:      "Total traded quantity across all trades.",
		}),
		rejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_rejections_total",
			Help:      "Total number of add_order calls rejected at the boundary.",
		}),
		cancelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancels_total",
			Help:      "Total number of successful cancel_order calls.",
		}),
		orderBookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orderbook_depth",
			Help:      "Aggregate resting quantity at the touch, by side.",
		}, []string{"side"}),
		matchingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matching_latency_seconds",
			Help:      "Latency of a single mutating engine call.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}

	registry.MustRegister(
		m.ordersTotal,
		m.tradesTotal,
		m.volumeTotal,
		m.rejectionsTotal,
		m.cancelsTotal,
		m.orderBookDepth,
		m.matchingLatency,
	)

	return m
}

// Handler returns the HTTP handler serving this registry's metrics in
// the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ListenAndServe starts a dedicated metrics HTTP server on addr.
func (m *Metrics) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("metrics: serve %s: %w", addr, err)
	}
	return nil
}

// RecordOrderAccepted increments the accepted-order counter.
func (m *Metrics) RecordOrderAccepted() { m.ordersTotal.Inc() }

// RecordOrderRejected increments the rejected-order counter.
func (m *Metrics) RecordOrderRejected() { m.rejectionsTotal.Inc() }

// RecordCancel increments the successful-cancel counter.
func (m *Metrics) RecordCancel() { m.cancelsTotal.Inc() }

// RecordTrades folds a batch of produced trades into the trade/volume
// counters.
func (m *Metrics) RecordTrades(count int, volume uint64) {
	if count > 0 {
		m.tradesTotal.Add(float64(count))
	}
	if volume > 0 {
		m.volumeTotal.Add(float64(volume))
	}
}

// ObserveMatchingLatency records how long one mutating call took, in
// seconds.
func (m *Metrics) ObserveMatchingLatency(seconds float64) {
	m.matchingLatency.Observe(seconds)
}

// SetDepth updates the touch-depth gauge for one side.
func (m *Metrics) SetDepth(side string, depth uint64) {
	m.orderBookDepth.WithLabelValues(side).Set(float64(depth))
}
