package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interior_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interior_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	// LedgerOperations counts debit/credit attempts by outcome.
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interior_ledger_operations_total",
		Help: "Ledger debit and credit operations",
	}, []string{"op", "type", "outcome"})

	GenerationsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interior_generations_submitted_total",
		Help: "Generation submissions by outcome",
	}, []string{"outcome"})

	// ProviderPolls counts status polls by answering transport and normalised status.
	ProviderPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interior_provider_polls_total",
		Help: "Provider status polls",
	}, []string{"path", "status"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interior_provider_request_duration_seconds",
		Help:    "Provider call latency",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15},
	}, []string{"op"})

	PollGuardTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interior_poll_guard_trips_total",
		Help: "Polls forced to failed by the poll-loop guard",
	}, []string{"reason"})

	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interior_rate_limit_decisions_total",
		Help: "Trial rate limiter decisions",
	}, []string{"scope", "allowed"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interior_payment_webhook_events_total",
		Help: "Payment webhook events by outcome",
	}, []string{"type", "outcome"})
)
