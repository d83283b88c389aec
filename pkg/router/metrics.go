package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for the router
type Metrics struct {
	quoteDuration *prometheus.HistogramVec
	quotesTotal   *prometheus.CounterVec
	poolsTracked  prometheus.Gauge
}

// NewMetrics creates and registers the metrics for the router
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		quoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_quote_duration_seconds",
			Help:    "Time taken to quote a single pool.",
			Buckets: prometheus.DefBuckets,
		}, []string{"protocol"}),
		quotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_quotes_total",
			Help: "Total number of pool quotes, labeled by protocol and result.",
		}, []string{"protocol", "result"}),
		poolsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_pools_tracked",
			Help: "Number of pools currently held by the router.",
		}),
	}
	reg.MustRegister(m.quoteDuration, m.quotesTotal, m.poolsTracked)
	return m
}
