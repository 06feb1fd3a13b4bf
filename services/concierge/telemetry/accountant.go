// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry accounts for the cost and latency of every model and
// retrieval call in a session, seals a per-session summary, and persists
// it best-effort. A persistence failure never fails the session.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// Sink receives sealed records for downstream analytics.
type Sink interface {
	Emit(ctx context.Context, record *datatypes.TelemetryRecord) error
}

// ledger is one session's in-progress accounting.
type ledger struct {
	tenantID  string
	startedAt time.Time
	calls     []datatypes.CallRecord
}

// Accountant accumulates per-call telemetry and seals session records.
//
// # Thread Safety
//
// One Accountant is shared across all sessions. Per-call records for a
// single session arrive from the orchestrator's worker pool, so every
// method locks. Store and sink writes happen outside the lock.
type Accountant struct {
	rates map[string]datatypes.ModelRate
	store Store
	sink  Sink

	mu      sync.Mutex
	ledgers map[string]*ledger
}

// NewAccountant creates an accountant. Store and sink are optional; nil
// disables persistence and analytics respectively, which is how tests
// and cost-free deployments run.
func NewAccountant(rates map[string]datatypes.ModelRate, store Store, sink Sink) *Accountant {
	if rates == nil {
		rates = map[string]datatypes.ModelRate{}
	}
	return &Accountant{
		rates:   rates,
		store:   store,
		sink:    sink,
		ledgers: map[string]*ledger{},
	}
}

// Begin opens the ledger for a session. Must be called before any
// Record* call for that session.
func (a *Accountant) Begin(sessionID, tenantID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ledgers[sessionID] = &ledger{tenantID: tenantID, startedAt: time.Now()}
}

// RecordPlan records one planning-model call.
func (a *Accountant) RecordPlan(sessionID, model string, usage datatypes.TokenUsage, latency time.Duration) {
	a.append(sessionID, datatypes.CallRecord{
		Kind:      "plan",
		Model:     model,
		Usage:     usage,
		LatencyMs: latency.Milliseconds(),
		CostUSD:   a.cost(model, usage),
	})
}

// RecordToolCall records a completed retrieval call. Tool calls carry no
// token cost; the entry captures strategy, outcome and latency.
func (a *Accountant) RecordToolCall(sessionID string, call *datatypes.ToolCall) {
	a.append(sessionID, datatypes.CallRecord{
		Kind:      "tool",
		Strategy:  call.Strategy,
		LatencyMs: call.Duration().Milliseconds(),
		Outcome:   call.Outcome,
	})
}

// RecordSynthesis records the final generation call.
func (a *Accountant) RecordSynthesis(sessionID, model string, usage datatypes.TokenUsage, latency time.Duration) {
	a.append(sessionID, datatypes.CallRecord{
		Kind:      "synthesis",
		Model:     model,
		Usage:     usage,
		LatencyMs: latency.Milliseconds(),
		CostUSD:   a.cost(model, usage),
	})
}

// Seal closes the session's ledger and returns its record.
//
// # Description
//
// Totals are computed from the per-call entries, the ledger is removed,
// and the record is written to the store and emitted to the sink. Both
// writes are best-effort: failures are logged and swallowed, and the
// in-memory record is returned regardless. Sealing an unknown session
// returns an empty record rather than nil so callers can attach it to a
// response unconditionally.
func (a *Accountant) Seal(ctx context.Context, sessionID string) *datatypes.TelemetryRecord {
	a.mu.Lock()
	led, ok := a.ledgers[sessionID]
	if ok {
		delete(a.ledgers, sessionID)
	}
	a.mu.Unlock()

	record := &datatypes.TelemetryRecord{
		SessionID: sessionID,
		SealedAt:  time.Now(),
	}
	if !ok {
		slog.Warn("sealing unknown session", "session_id", sessionID)
		return record
	}

	record.TenantID = led.tenantID
	record.Calls = led.calls
	record.DurationMs = time.Since(led.startedAt).Milliseconds()
	for _, c := range led.calls {
		record.PromptTokens += c.Usage.PromptTokens
		record.CompletionTokens += c.Usage.CompletionTokens
		record.CostUSD += c.CostUSD
	}

	if a.store != nil {
		if err := a.store.PutRecord(record); err != nil {
			slog.Error("telemetry record write failed", "session_id", sessionID, "error", err)
		}
	}
	if a.sink != nil {
		if err := a.sink.Emit(ctx, record); err != nil {
			slog.Error("telemetry sink emit failed", "session_id", sessionID, "error", err)
		}
	}
	return record
}

// SaveTrace persists a session trace best-effort.
func (a *Accountant) SaveTrace(trace *datatypes.SessionTrace) {
	if a.store == nil {
		return
	}
	if err := a.store.PutTrace(trace); err != nil {
		slog.Error("session trace write failed", "session_id", trace.SessionID, "error", err)
	}
}

// Trace loads a persisted session trace.
func (a *Accountant) Trace(sessionID string) (*datatypes.SessionTrace, error) {
	if a.store == nil {
		return nil, ErrRecordNotFound
	}
	return a.store.GetTrace(sessionID)
}

func (a *Accountant) append(sessionID string, record datatypes.CallRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	led, ok := a.ledgers[sessionID]
	if !ok {
		slog.Warn("telemetry entry for unknown session dropped",
			"session_id", sessionID, "kind", record.Kind)
		return
	}
	led.calls = append(led.calls, record)
}

// cost prices a usage sample. Unknown models cost zero; pricing gaps are
// a config problem, not a request failure.
func (a *Accountant) cost(model string, usage datatypes.TokenUsage) float64 {
	rate, ok := a.rates[model]
	if !ok {
		return 0
	}
	return rate.Cost(usage)
}
