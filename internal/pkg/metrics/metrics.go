package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CreditsDeducted counts minor units deducted from credit balances.
	CreditsDeducted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haggle_credits_deducted_cents_total",
		Help: "Total credits deducted, in cents.",
	})

	// CreditsRefunded counts minor units credited back after failed settlements.
	CreditsRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haggle_credits_refunded_cents_total",
		Help: "Total credits refunded, in cents.",
	})

	// ChallengesIssued counts 402 challenges returned for residual amounts.
	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haggle_payment_challenges_issued_total",
		Help: "Total 402 payment challenges issued.",
	})

	// Settlements counts settlement outcomes by status and rail.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haggle_settlements_total",
		Help: "Settlement outcomes by status and rail.",
	}, []string{"status", "rail"})

	// OracleSuggestions counts advisory oracle suggestions by clamped action.
	OracleSuggestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haggle_oracle_suggestions_total",
		Help: "Advisory oracle suggestions by accepted action.",
	}, []string{"action"})
)
