// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// CallOutcome classifies how a tool call finished.
type CallOutcome string

const (
	// OutcomeOK means the backend returned evidence (possibly none).
	OutcomeOK CallOutcome = "ok"

	// OutcomeError means the backend or catalog rejected the call.
	OutcomeError CallOutcome = "error"

	// OutcomeTimeout means the per-call deadline elapsed.
	OutcomeTimeout CallOutcome = "timeout"
)

// ToolCall is one invocation of a named retrieval strategy with
// planner-proposed parameters.
//
// A ToolCall is created by the orchestrator when a planner proposal is
// dispatched and is immutable once Complete has been called. It carries
// a non-owning back-reference to its session via SessionID.
type ToolCall struct {
	// ID uniquely identifies the call.
	ID string `json:"id"`

	// SessionID is the owning session (back-reference only).
	SessionID string `json:"session_id"`

	// Strategy is the catalog name of the retrieval strategy.
	Strategy string `json:"strategy"`

	// Params are the planner-proposed parameters, already validated
	// against the catalog schema at dispatch time.
	Params map[string]any `json:"params"`

	// Iteration is the planning round that proposed this call (1-based).
	Iteration int `json:"iteration"`

	// IssuedAt is when the call was dispatched.
	IssuedAt time.Time `json:"issued_at"`

	// CompletedAt is when the call finished, in any outcome.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Outcome classifies the result. Empty until completed.
	Outcome CallOutcome `json:"outcome,omitempty"`

	// EvidenceCount is the raw number of evidence items returned,
	// before aggregation and dedup.
	EvidenceCount int `json:"evidence_count"`

	// Truncated is set when the backend hit an internal deadline and
	// returned partial results.
	Truncated bool `json:"truncated,omitempty"`

	// Err holds the failure message for error/timeout outcomes.
	Err string `json:"error,omitempty"`
}

// NewToolCall creates a dispatched-but-not-completed tool call.
func NewToolCall(sessionID, strategy string, params map[string]any, iteration int) *ToolCall {
	return &ToolCall{
		ID:        "call_" + uuid.NewString(),
		SessionID: sessionID,
		Strategy:  strategy,
		Params:    params,
		Iteration: iteration,
		IssuedAt:  time.Now().UTC(),
	}
}

// Complete seals the call with its outcome. Subsequent calls are no-ops
// so a late timeout cannot overwrite a recorded result.
func (c *ToolCall) Complete(outcome CallOutcome, evidenceCount int, errMsg string) {
	if c.Outcome != "" {
		return
	}
	c.CompletedAt = time.Now().UTC()
	c.Outcome = outcome
	c.EvidenceCount = evidenceCount
	c.Err = errMsg
}

// Duration returns the call latency, or the elapsed time so far when the
// call has not completed.
func (c *ToolCall) Duration() time.Duration {
	if c.CompletedAt.IsZero() {
		return time.Since(c.IssuedAt)
	}
	return c.CompletedAt.Sub(c.IssuedAt)
}

// ToolProposal is a planner-suggested tool call before dispatch.
type ToolProposal struct {
	// Strategy is the catalog name of the retrieval strategy.
	Strategy string `json:"strategy"`

	// Params are the raw parameters the planner produced.
	Params map[string]any `json:"params"`
}

// Fingerprint returns a stable identity for proposal deduplication.
// Two proposals with the same strategy and parameters (regardless of
// map iteration order) share a fingerprint.
func (p ToolProposal) Fingerprint() string {
	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, p.Params[k])
	}
	// Marshal errors only on unserializable values, which the planner
	// cannot produce from JSON tool arguments.
	buf, _ := json.Marshal(ordered)
	return p.Strategy + "|" + string(buf)
}

// DedupeProposals removes duplicate proposals within one planning round,
// keeping first occurrences in order.
func DedupeProposals(proposals []ToolProposal) []ToolProposal {
	seen := make(map[string]bool, len(proposals))
	out := make([]ToolProposal, 0, len(proposals))
	for _, p := range proposals {
		fp := p.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, p)
	}
	return out
}
