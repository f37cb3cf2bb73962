// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speclens"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	completions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_completions_total",
		Help:      "Completion service calls by outcome.",
	}, []string{"outcome"})

	completionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_completion_duration_seconds",
		Help:      "Completion service latency.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	statements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "statements_processed_total",
		Help:      "Extracted statement candidates by conflict detector outcome.",
	}, []string{"outcome"})

	conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflicts_detected_total",
		Help:      "Conflict records created by severity.",
	}, []string{"severity"})

	dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capability_dispatch_total",
		Help:      "Capability dispatches by capability and status.",
	}, []string{"capability", "status"})

	txRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "project_tx_retries_total",
		Help:      "Project transactions retried after a transient Postgres error, by SQLSTATE.",
	}, []string{"code"})

	domainReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "domain_invalidations_total",
		Help:      "Domain cache invalidations triggered by file changes.",
	}, []string{"domain"})
)

func ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func ObserveCompletion(elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	completions.WithLabelValues(outcome).Inc()
	completionDuration.Observe(elapsed.Seconds())
}

// Statement outcomes.
const (
	OutcomePromoted   = "promoted"
	OutcomeSuperseded = "superseded"
	OutcomeDuplicate  = "duplicate"
	OutcomeHeld       = "held"
	OutcomeDropped    = "dropped"
)

func CountStatement(outcome string) {
	statements.WithLabelValues(outcome).Inc()
}

func CountConflict(severity string) {
	conflicts.WithLabelValues(severity).Inc()
}

func CountDispatch(capability, status string) {
	dispatches.WithLabelValues(capability, status).Inc()
}

func CountTxRetry(code string) {
	txRetries.WithLabelValues(code).Inc()
}

func CountDomainInvalidation(id string) {
	domainReloads.WithLabelValues(id).Inc()
}
