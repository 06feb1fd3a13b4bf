// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the data model shared across the Concierge
// retrieval-and-grounding engine.
//
// The types here mirror the lifecycle of answering one customer query:
// a SearchSession spans one or more planning/execution iterations, each
// iteration produces ToolCalls that yield Evidence, the Aggregator derives
// a GroundingContext from the accumulated Evidence, and the session seals
// into a TelemetryRecord plus an AnswerResult.
package datatypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a SearchSession.
type SessionState string

const (
	// StatePlanning means the planner is selecting retrieval strategies.
	StatePlanning SessionState = "planning"

	// StateExecuting means planned tool calls are being dispatched.
	StateExecuting SessionState = "executing"

	// StateRefining means the session is looping back to planning with
	// an insufficiency reason from the last evaluation.
	StateRefining SessionState = "refining"

	// StateSynthesizing means the final generation call is in flight.
	StateSynthesizing SessionState = "synthesizing"

	// StateDone is the terminal success state.
	StateDone SessionState = "done"

	// StateFailed is the terminal failure state, reachable from any
	// non-terminal state.
	StateFailed SessionState = "failed"
)

// String implements fmt.Stringer.
func (s SessionState) String() string { return string(s) }

// Terminal reports whether the state is terminal.
func (s SessionState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// AllSessionStates returns every defined session state.
func AllSessionStates() []SessionState {
	return []SessionState{
		StatePlanning,
		StateExecuting,
		StateRefining,
		StateSynthesizing,
		StateDone,
		StateFailed,
	}
}

// SessionOptions carries the per-request knobs a caller may override.
//
// Zero values mean "use the engine defaults". Options are validated and
// clamped by EnsureDefaults, never rejected: a customer-facing chat
// request should not fail because a dashboard passed a silly number.
type SessionOptions struct {
	// MaxIterations caps the number of Planning -> Executing cycles.
	MaxIterations int `json:"max_iterations,omitempty"`

	// WallBudget is the wall-clock budget for the whole session.
	WallBudget time.Duration `json:"wall_budget,omitempty"`

	// CallTimeout is the per-tool-call timeout.
	CallTimeout time.Duration `json:"call_timeout,omitempty"`

	// Concurrency bounds the parallel tool-call worker pool.
	Concurrency int `json:"concurrency,omitempty"`

	// SufficiencyThreshold overrides the tenant's sufficiency threshold.
	// Ignored when <= 0.
	SufficiencyThreshold float64 `json:"sufficiency_threshold,omitempty"`
}

// Default session limits. These are the engine-wide fallbacks; tenants
// may override the threshold, callers may override the rest per request.
const (
	DefaultMaxIterations = 3
	DefaultWallBudget    = 20 * time.Second
	DefaultCallTimeout   = 8 * time.Second
	DefaultConcurrency   = 5
)

// EnsureDefaults fills unset or out-of-range option fields.
func (o *SessionOptions) EnsureDefaults() {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.WallBudget <= 0 {
		o.WallBudget = DefaultWallBudget
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
}

// SearchSession is the record of one end-to-end query lifecycle.
//
// # Description
//
// A SearchSession is created when a query arrives and sealed when it
// reaches a terminal state. The orchestrator owns the session; everything
// else receives it read-only or via back-reference (session id).
//
// State transitions are monotonic: the only backward edge is
// refining -> executing (via planning), enforced by the orchestrator's
// state machine, not by this struct.
//
// # Thread Safety
//
// SearchSession is not synchronized. The orchestrator confines each
// session to a single goroutine; concurrent readers must use the
// session trace export instead.
type SearchSession struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// TenantID identifies the tenant whose corpus is searched.
	TenantID string `json:"tenant_id"`

	// Query is the original user utterance, unmodified.
	Query string `json:"query"`

	// StartedAt is when the session was created.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the session reached a terminal state.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// State is the current lifecycle state.
	State SessionState `json:"state"`

	// Iteration counts completed Planning -> Executing cycles.
	Iteration int `json:"iteration"`

	// Options are the effective (defaulted) session options.
	Options SessionOptions `json:"options"`

	// Calls are all tool calls issued across every iteration, in
	// dispatch order.
	Calls []*ToolCall `json:"calls"`
}

// NewSearchSession creates a session in the planning state.
func NewSearchSession(tenantID, query string, opts SessionOptions) *SearchSession {
	opts.EnsureDefaults()
	return &SearchSession{
		ID:        "sess_" + uuid.NewString(),
		TenantID:  tenantID,
		Query:     query,
		StartedAt: time.Now().UTC(),
		State:     StatePlanning,
		Options:   opts,
	}
}

// Validate checks session fields that callers must supply.
func (s *SearchSession) Validate() error {
	if s.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if s.Query == "" {
		return fmt.Errorf("query must not be empty")
	}
	return nil
}

// Elapsed returns the wall time consumed so far, or the total duration
// once the session has completed.
func (s *SearchSession) Elapsed() time.Duration {
	if !s.CompletedAt.IsZero() {
		return s.CompletedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// Trace builds the session-trace export consumed by the monitoring layer.
//
// The trace lists every tool call with outcome, timing and evidence
// counts. It is a snapshot; mutating the returned value does not affect
// the session.
func (s *SearchSession) Trace() *SessionTrace {
	trace := &SessionTrace{
		SessionID:  s.ID,
		TenantID:   s.TenantID,
		Query:      s.Query,
		State:      s.State,
		Iterations: s.Iteration,
		StartedAt:  s.StartedAt,
		DurationMs: s.Elapsed().Milliseconds(),
	}
	for _, call := range s.Calls {
		trace.Calls = append(trace.Calls, TraceCall{
			Strategy:      call.Strategy,
			Outcome:       call.Outcome,
			Iteration:     call.Iteration,
			DurationMs:    call.Duration().Milliseconds(),
			EvidenceCount: call.EvidenceCount,
		})
	}
	return trace
}

// SessionTrace is the exported debugging view of a session.
type SessionTrace struct {
	SessionID  string       `json:"session_id"`
	TenantID   string       `json:"tenant_id"`
	Query      string       `json:"query"`
	State      SessionState `json:"state"`
	Iterations int          `json:"iterations"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Calls      []TraceCall  `json:"calls"`
}

// TraceCall is one tool call entry inside a SessionTrace.
type TraceCall struct {
	Strategy      string      `json:"strategy"`
	Outcome       CallOutcome `json:"outcome"`
	Iteration     int         `json:"iteration"`
	DurationMs    int64       `json:"duration_ms"`
	EvidenceCount int         `json:"evidence_count"`
}
