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

	OrdersFulfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_fulfilled_total",
		Help: "Total number of orders fulfilled with assigned keys",
	})

	OrdersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_expired_total",
		Help: "Total number of unpaid orders expired",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order submissions",
	}, []string{"reason"})

	KeysAllocatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keys_allocated_total",
		Help: "Total number of keys assigned to orders",
	})

	KeysReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keys_released_total",
		Help: "Total number of keys released back to the pool",
	})

	KeyAllocationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "key_allocation_latency_seconds",
		Help:    "Latency of atomic key allocation",
		Buckets: prometheus.DefBuckets,
	})

	KeyAllocationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "key_allocations_failed_total",
		Help: "Total number of failed key allocations",
	}, []string{"reason"})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Total number of processed gateway callbacks",
	}, []string{"result"})

	CallbackLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_callback_latency_seconds",
		Help:    "Latency of gateway callback processing",
		Buckets: prometheus.DefBuckets,
	})

	NoStockSettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "no_stock_settlements_total",
		Help: "Total number of payments received for exhausted key pools",
	})

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
