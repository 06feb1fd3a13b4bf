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

import "time"

// TokenUsage holds prompt/completion token counts for one model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns prompt plus completion tokens.
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// CallRecord is one telemetry entry: a planner call, a tool call, or the
// synthesis call. Entries are append-only.
type CallRecord struct {
	// Kind is "plan", "tool" or "synthesis".
	Kind string `json:"kind"`

	// Strategy is set for tool entries.
	Strategy string `json:"strategy,omitempty"`

	// Model is the model identifier for LLM entries.
	Model string `json:"model,omitempty"`

	// Usage is the token usage for LLM entries.
	Usage TokenUsage `json:"usage"`

	// LatencyMs is the call latency.
	LatencyMs int64 `json:"latency_ms"`

	// Outcome is the call outcome for tool entries.
	Outcome CallOutcome `json:"outcome,omitempty"`

	// CostUSD is the computed cost of this entry.
	CostUSD float64 `json:"cost_usd"`
}

// TelemetryRecord is the sealed cost/latency summary for one session.
//
// The record is assembled in memory by the accountant and flushed to the
// durable store at session end. A failed flush never invalidates the
// in-memory record.
type TelemetryRecord struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`

	// TenantID identifies the tenant, for per-tenant cost reporting.
	TenantID string `json:"tenant_id"`

	// Calls are the per-call entries in record order.
	Calls []CallRecord `json:"calls"`

	// PromptTokens and CompletionTokens are session totals.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// CostUSD is the total session cost.
	CostUSD float64 `json:"cost_usd"`

	// DurationMs is the total session wall time.
	DurationMs int64 `json:"duration_ms"`

	// SealedAt is when the record was sealed.
	SealedAt time.Time `json:"sealed_at"`
}

// ModelRate is the per-token pricing for one model identifier, in USD
// per single token.
type ModelRate struct {
	InputPerToken  float64 `json:"input_per_token" yaml:"input_per_token"`
	OutputPerToken float64 `json:"output_per_token" yaml:"output_per_token"`
}

// Cost computes the cost of a usage sample under this rate.
func (r ModelRate) Cost(usage TokenUsage) float64 {
	return float64(usage.PromptTokens)*r.InputPerToken +
		float64(usage.CompletionTokens)*r.OutputPerToken
}
