package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersUpdatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_updated_total",
		Help: "Total number of order updates by resulting status",
	}, []string{"status"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of orders moved to CANCELLED while holding stock",
	})

	OrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_deleted_total",
		Help: "Total number of deleted orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order operations",
	}, []string{"operation", "reason"})

	StockUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_units_total",
		Help: "Stock units moved by order reconciliation",
	}, []string{"direction"})

	LedgerTxLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transaction_latency_seconds",
		Help:    "Latency of order/stock reconciliation transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ProductStockOverwritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_stock_overwrites_total",
		Help: "Direct stock writes on products that still had open orders",
	})

	ProductCacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_cache_requests_total",
		Help: "Product cache lookups by result",
	}, []string{"result"})

	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Domain events written to the broker by type and result",
	}, []string{"event_type", "result"})

	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Domain events handled by background workers by type and result",
	}, []string{"event_type", "result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// RecordStockMovement counts units reserved (negative delta) or released (positive delta)
func RecordStockMovement(delta int) {
	switch {
	case delta < 0:
		StockUnitsTotal.WithLabelValues("reserved").Add(float64(-delta))
	case delta > 0:
		StockUnitsTotal.WithLabelValues("released").Add(float64(delta))
	}
}
