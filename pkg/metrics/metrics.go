// Package metrics exposes Prometheus collectors for the exchange engine.
// A nil *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	orders        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	fills         *prometheus.CounterVec
	skippedMakers *prometheus.CounterVec
	restingOrders *prometheus.GaugeVec
	deposits      *prometheus.CounterVec
	withdrawals   *prometheus.CounterVec
}

// NewCollector creates the engine collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Name:      "orders_total",
			Help:      "Accepted orders by kind (limit, market) and side.",
		}, []string{"kind", "side"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Name:      "rejections_total",
			Help:      "Operations rejected by validation, by operation and reason.",
		}, []string{"op", "reason"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Name:      "fills_total",
			Help:      "Fills settled against resting orders.",
		}, []string{"ticker"}),
		skippedMakers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Name:      "unfunded_makers_skipped_total",
			Help:      "Resting orders passed over because the maker could not cover the fill.",
		}, []string{"ticker"}),
		restingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dex",
			Name:      "resting_orders",
			Help:      "Orders currently resting in the book.",
		}, []string{"ticker", "side"}),
		deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Name:      "deposits_total",
			Help:      "Successful deposits by ticker.",
		}, []string{"ticker"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Name:      "withdrawals_total",
			Help:      "Successful withdrawals by ticker.",
		}, []string{"ticker"}),
	}
	reg.MustRegister(c.orders, c.rejections, c.fills, c.skippedMakers, c.restingOrders, c.deposits, c.withdrawals)
	return c
}

func (c *Collector) OrderAccepted(kind, side string) {
	if c == nil {
		return
	}
	c.orders.WithLabelValues(kind, side).Inc()
}

func (c *Collector) Rejected(op, reason string) {
	if c == nil {
		return
	}
	c.rejections.WithLabelValues(op, reason).Inc()
}

func (c *Collector) Filled(ticker string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.fills.WithLabelValues(ticker).Add(float64(n))
}

func (c *Collector) MakerSkipped(ticker string) {
	if c == nil {
		return
	}
	c.skippedMakers.WithLabelValues(ticker).Inc()
}

func (c *Collector) SetResting(ticker, side string, n int) {
	if c == nil {
		return
	}
	c.restingOrders.WithLabelValues(ticker, side).Set(float64(n))
}

func (c *Collector) Deposited(ticker string) {
	if c == nil {
		return
	}
	c.deposits.WithLabelValues(ticker).Inc()
}

func (c *Collector) Withdrew(ticker string) {
	if c == nil {
		return
	}
	c.withdrawals.WithLabelValues(ticker).Inc()
}
