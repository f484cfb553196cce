// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded for a remote event.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
)

var (
	// RemoteEvents counts change notifications by kind and what the store did with them.
	RemoteEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelf",
		Name:      "remote_events_total",
		Help:      "Change notifications consumed by reconciling stores.",
	}, []string{"kind", "outcome"})

	// GatewayErrors counts failed gateway calls by operation.
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelf",
		Name:      "gateway_errors_total",
		Help:      "Persistence gateway calls that failed.",
	}, []string{"op"})

	// Resyncs counts full reloads by reason.
	Resyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelf",
		Name:      "resyncs_total",
		Help:      "Full reloads from the persistence gateway.",
	}, []string{"reason"})

	// Resubscriptions counts notifier subscriptions re-established after a drop.
	Resubscriptions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shelf",
		Name:      "resubscriptions_total",
		Help:      "Change notifier subscriptions re-established after a connection loss.",
	})

	// ActiveSessions is the number of open sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "shelf",
		Name:      "active_sessions",
		Help:      "Sessions holding a reconciling store and a notifier subscription.",
	})
)
