package observability

import (
	"context"
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RaffleMetrics records raffle engine activity.
type RaffleMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationRejected(ctx context.Context, operation, service, reason string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)

	RecordRoundState(ctx context.Context, state string, players int, pool *big.Int)
	RecordEntry(ctx context.Context, amount *big.Int)
	RecordSettlement(ctx context.Context, payout *big.Int)
	RecordPayoutFailure(ctx context.Context)
	RecordNotificationFailure(ctx context.Context, topic string)
	RecordUpkeepRun(ctx context.Context, outcome string)
}

var raffleStates = []string{"OPEN", "CALCULATING"}

// PrometheusRaffleMetrics is the prometheus-backed RaffleMetrics.
type PrometheusRaffleMetrics struct {
	attempts             *prometheus.CounterVec
	successes            *prometheus.CounterVec
	failures             *prometheus.CounterVec
	rejections           *prometheus.CounterVec
	durations            *prometheus.HistogramVec
	state                *prometheus.GaugeVec
	players              prometheus.Gauge
	pool                 prometheus.Gauge
	entries              prometheus.Counter
	entryAmount          prometheus.Counter
	settlements          prometheus.Counter
	paidOut              prometheus.Counter
	payoutFailures       prometheus.Counter
	notificationFailures *prometheus.CounterVec
	upkeepRuns           *prometheus.CounterVec
}

// NewPrometheusRaffleMetrics registers the raffle collectors on registry.
func NewPrometheusRaffleMetrics(registry prometheus.Registerer) (*PrometheusRaffleMetrics, error) {
	m := &PrometheusRaffleMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Name: "operation_attempts_total",
			Help: "Raffle operations attempted.",
		}, []string{"operation", "service"}),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Name: "operation_success_total",
			Help: "Raffle operations that completed.",
		}, []string{"operation", "service"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Name: "operation_failures_total",
			Help: "Raffle operations that failed on infrastructure errors.",
		}, []string{"operation", "service"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Name: "operation_rejections_total",
			Help: "Raffle operations refused by a business rule.",
		}, []string{"operation", "service", "reason"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raffle", Name: "operation_duration_seconds",
			Help:    "Raffle operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "service"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "raffle", Name: "state",
			Help: "1 for the current raffle state, 0 otherwise.",
		}, []string{"state"}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raffle", Name: "players",
			Help: "Entries in the current round.",
		}),
		pool: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raffle", Name: "pool",
			Help: "Accumulated fees in the current round (smallest unit, float approximation).",
		}),
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raffle", Name: "entries_total",
			Help: "Accepted entries.",
		}),
		entryAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raffle", Name: "entry_amount_total",
			Help: "Sum of accepted entrance fees (float approximation).",
		}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raffle", Name: "settlements_total",
			Help: "Rounds settled and paid.",
		}),
		paidOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raffle", Name: "paid_out_total",
			Help: "Sum of payouts (float approximation).",
		}),
		payoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raffle", Name: "payout_failures_total",
			Help: "Payouts rejected by the payout collaborator.",
		}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Name: "notification_failures_total",
			Help: "Notifications that could not be published.",
		}, []string{"topic"}),
		upkeepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raffle", Name: "upkeep_runs_total",
			Help: "Keeper polls by outcome.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		m.attempts, m.successes, m.failures, m.rejections, m.durations,
		m.state, m.players, m.pool, m.entries, m.entryAmount,
		m.settlements, m.paidOut, m.payoutFailures, m.notificationFailures, m.upkeepRuns,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusRaffleMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.attempts.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusRaffleMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.successes.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusRaffleMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.failures.WithLabelValues(operation, service).Inc()
}

func (m *PrometheusRaffleMetrics) RecordOperationRejected(_ context.Context, operation, service, reason string) {
	m.rejections.WithLabelValues(operation, service, reason).Inc()
}

func (m *PrometheusRaffleMetrics) RecordOperationDuration(_ context.Context, operation, service string, duration time.Duration) {
	m.durations.WithLabelValues(operation, service).Observe(duration.Seconds())
}

func (m *PrometheusRaffleMetrics) RecordRoundState(_ context.Context, state string, players int, pool *big.Int) {
	for _, s := range raffleStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
	m.players.Set(float64(players))
	m.pool.Set(bigToFloat(pool))
}

func (m *PrometheusRaffleMetrics) RecordEntry(_ context.Context, amount *big.Int) {
	m.entries.Inc()
	m.entryAmount.Add(bigToFloat(amount))
}

func (m *PrometheusRaffleMetrics) RecordSettlement(_ context.Context, payout *big.Int) {
	m.settlements.Inc()
	m.paidOut.Add(bigToFloat(payout))
}

func (m *PrometheusRaffleMetrics) RecordPayoutFailure(_ context.Context) {
	m.payoutFailures.Inc()
}

func (m *PrometheusRaffleMetrics) RecordNotificationFailure(_ context.Context, topic string) {
	m.notificationFailures.WithLabelValues(topic).Inc()
}

func (m *PrometheusRaffleMetrics) RecordUpkeepRun(_ context.Context, outcome string) {
	m.upkeepRuns.WithLabelValues(outcome).Inc()
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// NoOpRaffleMetrics discards every measurement.
type NoOpRaffleMetrics struct{}

func (NoOpRaffleMetrics) RecordOperationAttempt(context.Context, string, string)                 {}
func (NoOpRaffleMetrics) RecordOperationSuccess(context.Context, string, string)                 {}
func (NoOpRaffleMetrics) RecordOperationFailure(context.Context, string, string)                 {}
func (NoOpRaffleMetrics) RecordOperationRejected(context.Context, string, string, string)        {}
func (NoOpRaffleMetrics) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (NoOpRaffleMetrics) RecordRoundState(context.Context, string, int, *big.Int)                {}
func (NoOpRaffleMetrics) RecordEntry(context.Context, *big.Int)                                  {}
func (NoOpRaffleMetrics) RecordSettlement(context.Context, *big.Int)                             {}
func (NoOpRaffleMetrics) RecordPayoutFailure(context.Context)                                    {}
func (NoOpRaffleMetrics) RecordNotificationFailure(context.Context, string)                      {}
func (NoOpRaffleMetrics) RecordUpkeepRun(context.Context, string)                                {}
