// Package metrics provides Prometheus metrics for credential refreshes and document validation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Token access paths.
const (
	PathCached    = "cached"
	PathRefreshed = "refreshed"
	PathFailed    = "failed"
	PathNoSession = "no_session"
)

var (
	// TokenRequestsTotal counts GetValidToken calls by how they were served.
	TokenRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formkeeper",
			Subsystem: "credentials",
			Name:      "token_requests_total",
			Help:      "Access token requests by serving path",
		},
		[]string{"path"},
	)

	// RefreshTotal counts refresh exchanges sent to the provider.
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formkeeper",
			Subsystem: "credentials",
			Name:      "refresh_total",
			Help:      "Refresh token exchanges by result",
		},
		[]string{"result"},
	)

	// RefreshDuration observes the latency of refresh exchanges.
	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "formkeeper",
			Subsystem: "credentials",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh token exchanges",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ValidationTotal counts document validations by outcome ("valid" or the violated rule).
	ValidationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "formkeeper",
			Subsystem: "documents",
			Name:      "validations_total",
			Help:      "Create-document validations by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		TokenRequestsTotal,
		RefreshTotal,
		RefreshDuration,
		ValidationTotal,
	)
}

// RecordTokenRequest increments the token request counter for a serving path.
func RecordTokenRequest(path string) {
	TokenRequestsTotal.WithLabelValues(path).Inc()
}

// RecordRefresh records the result and latency of a refresh exchange.
func RecordRefresh(success bool, seconds float64) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}
	RefreshTotal.WithLabelValues(result).Inc()
	RefreshDuration.Observe(seconds)
}

// RecordValidation increments the validation counter for an outcome.
func RecordValidation(outcome string) {
	ValidationTotal.WithLabelValues(outcome).Inc()
}
