package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	betsPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colorbet",
			Subsystem: "bets",
			Name:      "placed_total",
			Help:      "Bets accepted, by outcome.",
		},
		[]string{"outcome"},
	)

	betsStaked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colorbet",
			Subsystem: "bets",
			Name:      "staked_amount_total",
			Help:      "Sum of accepted stakes, by outcome.",
		},
		[]string{"outcome"},
	)

	betsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colorbet",
			Subsystem: "bets",
			Name:      "rejected_total",
			Help:      "Bets rejected, by error code.",
		},
		[]string{"code"},
	)

	roundsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colorbet",
			Subsystem: "rounds",
			Name:      "settled_total",
			Help:      "Rounds settled, by winner and whether the winner was forced.",
		},
		[]string{"winner", "forced"},
	)

	settlementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "colorbet",
			Subsystem: "rounds",
			Name:      "settlement_duration_seconds",
			Help:      "Time spent settling one round.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)

	betSettleFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "colorbet",
			Subsystem: "rounds",
			Name:      "bet_settle_failures_total",
			Help:      "Individual bets left PLACED after a settlement attempt.",
		},
	)

	houseProfit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "colorbet",
			Subsystem: "house",
			Name:      "profit_amount",
			Help:      "Stakes minus payouts over rounds settled by this process.",
		},
	)

	schedulerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colorbet",
			Subsystem: "scheduler",
			Name:      "errors_total",
			Help:      "Scheduler step failures, by step.",
		},
		[]string{"step"},
	)

	commissionsPaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "colorbet",
			Subsystem: "referral",
			Name:      "commission_amount_total",
			Help:      "Referral commission credited, by event type and level.",
		},
		[]string{"event", "level"},
	)
)

func init() {
	Registry.MustRegister(
		betsPlaced,
		betsStaked,
		betsRejected,
		roundsSettled,
		settlementDuration,
		betSettleFailures,
		houseProfit,
		schedulerErrors,
		commissionsPaid,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func BetPlaced(outcome string, amount float64) {
	betsPlaced.WithLabelValues(outcome).Inc()
	betsStaked.WithLabelValues(outcome).Add(amount)
}

func BetRejected(code string) {
	betsRejected.WithLabelValues(code).Inc()
}

func RoundSettled(winner string, forced bool, seconds float64, failed int) {
	f := "false"
	if forced {
		f = "true"
	}
	roundsSettled.WithLabelValues(winner, f).Inc()
	settlementDuration.Observe(seconds)
	betSettleFailures.Add(float64(failed))
}

func HouseProfit(profit float64) {
	houseProfit.Add(profit)
}

func SchedulerError(step string) {
	schedulerErrors.WithLabelValues(step).Inc()
}

func CommissionPaid(event string, level string, amount float64) {
	commissionsPaid.WithLabelValues(event, level).Add(amount)
}
