package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResellerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reseller_requests_total",
		Help: "Total number of reseller API requests",
	}, []string{"path", "outcome"})

	ResellerRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reseller_request_latency_seconds",
		Help:    "Latency of reseller API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})

	FulfillmentOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_orders_total",
		Help: "Order fulfillment task outcomes",
	}, []string{"result"})

	StatusRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "status_refresh_total",
		Help: "Status refresh task outcomes",
	}, []string{"result"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Balance refunds applied, by terminal status",
	}, []string{"status"})

	RefundedAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunded_amount_total",
		Help: "Sum of refunded amounts in currency units",
	})

	RefreshRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_rate_limited_total",
		Help: "Refresh requests rejected by the cooldown window",
	})

	CheckoutTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_transactions_total",
		Help: "Transactions created by checkout",
	}, []string{"result"})

	TopUpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topups_approved_total",
		Help: "Top-ups approved by admin",
	})

	TaskProcessingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "task_processing_latency_seconds",
		Help:    "Latency of queued task execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

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
