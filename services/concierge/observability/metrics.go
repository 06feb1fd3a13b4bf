// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability holds the Prometheus metrics for the concierge
// engine. Metrics are package-level promauto registrations; recording
// helpers keep label sets consistent across call sites.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Concierge Engine
// =============================================================================

var (
	// sessionsTotal counts finished sessions by response class.
	// Labels: tenant, class (grounded, insufficient, failed)
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "concierge",
		Name:      "sessions_total",
		Help:      "Finished sessions by response class",
	}, []string{"tenant", "class"})

	// sessionDuration measures end-to-end session latency.
	// Labels: tenant
	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "concierge",
		Name:      "session_duration_seconds",
		Help:      "End-to-end session latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 12, 16, 20, 30},
	}, []string{"tenant"})

	// sessionIterations tracks planning rounds per session.
	sessionIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "concierge",
		Name:      "session_iterations",
		Help:      "Planning rounds per session",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})

	// sessionCost tracks model spend per session in USD.
	// Labels: tenant
	sessionCost = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "concierge",
		Name:      "session_cost_usd",
		Help:      "Model spend per session in USD",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"tenant"})

	// toolCallsTotal counts tool calls by strategy and outcome.
	// Labels: strategy, outcome (ok, error, timeout)
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "concierge",
		Name:      "tool_calls_total",
		Help:      "Tool calls by strategy and outcome",
	}, []string{"strategy", "outcome"})

	// toolCallDuration measures individual tool-call latency.
	// Labels: strategy
	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "concierge",
		Name:      "tool_call_duration_seconds",
		Help:      "Tool call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"strategy"})

	// insufficiencyTotal counts insufficient evaluations by reason.
	// Labels: reason (no_relevant_evidence, low_confidence)
	insufficiencyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "concierge",
		Name:      "insufficiency_total",
		Help:      "Insufficient grounding evaluations by reason",
	}, []string{"reason"})
)

// Response classes for RecordSession.
const (
	ClassGrounded     = "grounded"
	ClassInsufficient = "insufficient"
	ClassFailed       = "failed"
)

// RecordSession records the terminal metrics for one session.
func RecordSession(tenant, class string, duration time.Duration, iterations int, costUSD float64) {
	sessionsTotal.WithLabelValues(tenant, class).Inc()
	sessionDuration.WithLabelValues(tenant).Observe(duration.Seconds())
	sessionIterations.Observe(float64(iterations))
	sessionCost.WithLabelValues(tenant).Observe(costUSD)
}

// RecordToolCall records one completed tool call.
func RecordToolCall(strategy, outcome string, duration time.Duration) {
	toolCallsTotal.WithLabelValues(strategy, outcome).Inc()
	toolCallDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordInsufficiency records an insufficient grounding evaluation.
func RecordInsufficiency(reason string) {
	insufficiencyTotal.WithLabelValues(reason).Inc()
}
