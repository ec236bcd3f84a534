package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VerificationAttempts counts verification verdicts by protocol and outcome.
var VerificationAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "keygate_verification_attempts_total",
		Help: "Verification attempts by protocol and outcome",
	},
	[]string{"protocol", "outcome"},
)
