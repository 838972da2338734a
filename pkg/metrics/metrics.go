package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records signed-challenge authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credvault_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credvault_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// CredentialOperations counts registry mutations by operation and result.
	CredentialOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credvault_credential_operations_total",
			Help: "Total number of credential registry mutations",
		},
		[]string{"operation", "result"},
	)

	// DecryptRequests counts gateway decrypt authorizations by outcome
	// (granted|denied|expired|invalid_signature).
	DecryptRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credvault_decrypt_requests_total",
			Help: "Total number of gateway decrypt requests",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "credvault_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
