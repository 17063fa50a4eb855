package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LedgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loyalty_ledger_ops_total", Help: "Ledger operations by transaction type and outcome"},
		[]string{"type", "outcome"},
	)
	PointsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loyalty_points_moved_total", Help: "Absolute points moved by transaction type"},
		[]string{"type"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "loyalty_http_requests_total", Help: "HTTP requests by route and status"},
		[]string{"method", "route", "status"},
	)
	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "loyalty_ws_clients", Help: "Connected notification clients"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(LedgerOps, PointsMoved, HTTPRequests, WSClients)
	})
}

// Ledger records the outcome of a ledger mutation. amount is only counted on success.
func Ledger(txType string, amount int, err error) {
	if err != nil {
		LedgerOps.WithLabelValues(txType, "rejected").Inc()
		return
	}

	LedgerOps.WithLabelValues(txType, "ok").Inc()
	if amount < 0 {
		amount = -amount
	}
	PointsMoved.WithLabelValues(txType).Add(float64(amount))
}
