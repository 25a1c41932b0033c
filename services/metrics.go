package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	claims        *prometheus.CounterVec
	coins         *prometheus.CounterVec
	txRetries     prometheus.Counter
	auditFindings prometheus.Counter
	auditRuns     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "claims_total",
			Help:      "Claim attempts by reward kind and outcome.",
		}, []string{"kind", "outcome"}),
		coins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "coins_awarded_total",
			Help:      "Coins credited to users by reward kind.",
		}, []string{"kind"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "transaction_retries_total",
			Help:      "Ledger transactions re-run after a write conflict.",
		}),
		auditFindings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "audit_findings_total",
			Help:      "Ledgers found inconsistent by the audit job.",
		}),
		auditRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "audit_runs_total",
			Help:      "Completed ledger audit runs.",
		}),
	}
	m.Registry.MustRegister(m.claims, m.coins, m.txRetries, m.auditFindings, m.auditRuns)
	return m
}

// claimOutcome buckets an engine error into a metrics label.
func claimOutcome(err error) string {
	var cooldown *CooldownError
	switch {
	case err == nil:
		return "ok"
	case IsDuplicateClaim(err):
		return "duplicate"
	case errors.Is(err, ErrRewardNotFound):
		return "not_found"
	case errors.Is(err, ErrDailyLimitReached):
		return "limit"
	case errors.As(err, &cooldown):
		return "cooldown"
	case errors.Is(err, ErrTransactionConflict):
		return "conflict"
	}
	return "error"
}

func (m *Metrics) ObserveClaim(kind string, coins int64, err error) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(kind, claimOutcome(err)).Inc()
	if err == nil && coins > 0 {
		m.coins.WithLabelValues(kind).Add(float64(coins))
	}
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.txRetries.Inc()
}

func (m *Metrics) ObserveAudit(findings int) {
	if m == nil {
		return
	}
	m.auditRuns.Inc()
	m.auditFindings.Add(float64(findings))
}
