package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liquidbot_build_info",
			Help: "Build information of the treasury bot",
		},
		[]string{"version", "commit"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidbot_cycles_total",
			Help: "Total number of reconciliation cycles by outcome",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "liquidbot_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~410s
		},
	)

	FeesCollectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liquidbot_fees_collected_lamports_total",
			Help: "Cumulative creator fees harvested, in lamports",
		},
	)

	BuybackSpentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liquidbot_buyback_spent_lamports_total",
			Help: "Cumulative lamports spent on buy-pressure",
		},
	)

	LiquidityDepositedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liquidbot_liquidity_deposited_lamports_total",
			Help: "Cumulative lamports deposited into pool liquidity",
		},
	)

	HeldReserve = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liquidbot_held_reserve_lamports",
			Help: "Lamports currently held in reserve for liquidity",
		},
	)

	TokenBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liquidbot_token_balance",
			Help: "Current wallet token balance in raw token units",
		},
	)

	Phase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "liquidbot_phase",
			Help: "Current market phase (1 for the active phase, 0 otherwise)",
		},
		[]string{"phase"},
	)

	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidbot_rpc_requests_total",
			Help: "Total number of Solana RPC requests",
		},
		[]string{"method", "status"},
	)

	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liquidbot_transactions_total",
			Help: "Total number of submitted transactions by kind and outcome",
		},
		[]string{"kind", "status"},
	)
)
