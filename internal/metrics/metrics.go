// Package metrics provides Prometheus metrics for the auth services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TokensMinted counts internal tokens issued, by source (login, user_token, refresh).
	TokensMinted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "tokens_minted_total",
			Help:      "Total number of internal tokens signed",
		},
		[]string{"source"},
	)

	// Renewals counts renewal attempts by outcome.
	Renewals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "renewals_total",
			Help:      "Total number of token renewal attempts",
		},
		[]string{"outcome"},
	)

	// UpstreamRefreshDuration measures calls to the provider token endpoint.
	UpstreamRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "auth",
			Name:      "upstream_refresh_duration_seconds",
			Help:      "Duration of upstream refresh calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"status"},
	)

	// GuardDecisions counts guard outcomes per service.
	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "guard_decisions_total",
			Help:      "Total number of request authorization decisions",
		},
		[]string{"service", "outcome"},
	)

	// LoginsCompleted counts login callbacks by status.
	LoginsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logins_total",
			Help:      "Total number of completed login callbacks",
		},
		[]string{"status"},
	)

	// CredentialsPurged counts credentials removed by the retention job.
	CredentialsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "credentials_purged_total",
			Help:      "Total number of terminal credentials deleted",
		},
	)

	// HTTPRequests counts served requests.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
)

// RecordRenewal records a renewal outcome.
func RecordRenewal(outcome string) {
	Renewals.WithLabelValues(outcome).Inc()
}

// RecordMint records a signed token.
func RecordMint(source string) {
	TokensMinted.WithLabelValues(source).Inc()
}

// RecordGuard records an authorization decision.
func RecordGuard(service, outcome string) {
	GuardDecisions.WithLabelValues(service, outcome).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
