package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	kycTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_transitions_total",
			Help: "Applicant status transitions by source and resulting status",
		},
		[]string{"source", "status"},
	)

	kycVerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_verdicts_total",
			Help: "Third-party verdicts processed by outcome",
		},
		[]string{"outcome"},
	)

	profileRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_profile_update_requests_total",
			Help: "Profile update request lifecycle events",
		},
		[]string{"status"},
	)

	notificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_notification_failures_total",
			Help: "Notifications that could not be enqueued",
		},
		[]string{"routing_key"},
	)

	outboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kyc_outbox_messages_total",
			Help: "Outbox messages handled by the dispatcher",
		},
		[]string{"result"},
	)

	verdictPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kyc_verdict_poll_duration_seconds",
			Help:    "Duration of the stale verdict poll job",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30, 60},
		},
	)
)
