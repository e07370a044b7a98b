package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the credit ledger.
type Metrics struct {
	debits             *prometheus.CounterVec
	credits            *prometheus.CounterVec
	insufficientCredit *prometheus.CounterVec
	idempotentReplays  *prometheus.CounterVec
	debitDuration      *prometheus.HistogramVec
	grantRuns          *prometheus.CounterVec
	grantedCredits     prometheus.Counter
	scheduleOverrides  *prometheus.CounterVec
}

// NewMetrics registers and returns Prometheus metrics for the ledger.
func NewMetrics() *Metrics {
	debits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "creditledger_debits_total",
		Help: "Counts accepted debits by feature type.",
	}, []string{"feature_type"})

	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "creditledger_credits_total",
		Help: "Counts accepted credits by transaction type and pool.",
	}, []string{"transaction_type", "pool"})

	insufficientCredit := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "creditledger_insufficient_credits_total",
		Help: "Counts debits rejected for insufficient balance.",
	}, []string{"feature_type"})

	idempotentReplays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "creditledger_idempotent_replays_total",
		Help: "Counts operations short-circuited by an existing idempotency key.",
	}, []string{"operation"})

	debitDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "creditledger_debit_duration_seconds",
		Help:    "Debit critical-section latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	grantRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "creditledger_grant_sweep_runs_total",
		Help: "Counts monthly-grant sweep runs by status.",
	}, []string{"status"})

	grantedCredits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "creditledger_granted_credits_total",
		Help: "Total included credits granted by the monthly sweep.",
	})

	scheduleOverrides := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "creditledger_schedule_overrides_total",
		Help: "Counts schedule consolidations and restorations.",
	}, []string{"action"})

	prometheus.MustRegister(
		debits,
		credits,
		insufficientCredit,
		idempotentReplays,
		debitDuration,
		grantRuns,
		grantedCredits,
		scheduleOverrides,
	)

	return &Metrics{
		debits:             debits,
		credits:            credits,
		insufficientCredit: insufficientCredit,
		idempotentReplays:  idempotentReplays,
		debitDuration:      debitDuration,
		grantRuns:          grantRuns,
		grantedCredits:     grantedCredits,
		scheduleOverrides:  scheduleOverrides,
	}
}

func (m *Metrics) RecordDebit(featureType string) {
	if m == nil {
		return
	}
	m.debits.WithLabelValues(featureType).Inc()
}

func (m *Metrics) RecordCredit(transactionType, pool string) {
	if m == nil {
		return
	}
	m.credits.WithLabelValues(transactionType, pool).Inc()
}

func (m *Metrics) RecordInsufficientCredits(featureType string) {
	if m == nil {
		return
	}
	m.insufficientCredit.WithLabelValues(featureType).Inc()
}

func (m *Metrics) RecordIdempotentReplay(operation string) {
	if m == nil {
		return
	}
	m.idempotentReplays.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveDebitDuration(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.debitDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) RecordGrantRun(status string) {
	if m == nil {
		return
	}
	m.grantRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) AddGrantedCredits(amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.grantedCredits.Add(float64(amount))
}

func (m *Metrics) RecordScheduleOverride(action string) {
	if m == nil {
		return
	}
	m.scheduleOverrides.WithLabelValues(action).Inc()
}
