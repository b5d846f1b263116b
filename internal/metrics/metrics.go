package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsTotal counts bridge transactions by chain pair and final status
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_transactions_total",
			Help: "Total number of bridge transactions",
		},
		[]string{"from_chain", "to_chain", "status"},
	)

	// TransactionDuration tracks wall-clock time from creation to completion
	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_transaction_duration_seconds",
			Help:    "Bridge transaction duration in seconds",
			Buckets: []float64{60, 300, 600, 900, 1800, 3600},
		},
		[]string{"from_chain", "to_chain"},
	)

	// DispatchesTotal counts on-chain dispatch attempts by chain and outcome
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_dispatches_total",
			Help: "Total number of on-chain transfer dispatches",
		},
		[]string{"chain", "status"},
	)

	// PendingTransactions tracks non-terminal transactions seen by the sweeper
	PendingTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_pending_transactions",
			Help: "Number of transactions in a non-terminal state",
		},
	)

	// StaleFailures counts transactions force-failed by the staleness sweep
	StaleFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_stale_failures_total",
			Help: "Total number of transactions failed by the staleness sweep",
		},
	)

	// WebhookEvents counts webhook deliveries by source and result
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_webhook_events_total",
			Help: "Total number of webhook events received",
		},
		[]string{"source", "result"},
	)

	// WSClients tracks connected websocket clients
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_ws_clients",
			Help: "Number of connected websocket clients",
		},
	)

	// PriceUpdates counts token price refreshes
	PriceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_price_updates_total",
			Help: "Total number of token price updates",
		},
		[]string{"source"},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
