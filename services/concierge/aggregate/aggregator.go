// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregate merges evidence across tool calls into a ranked,
// deduplicated GroundingContext.
package aggregate

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

var tracer = otel.Tracer("aleutian.concierge.aggregate")

// Config holds the ranking tunables. The blended-score weights are an
// empirical product decision; deployments override them in YAML rather
// than editing code.
type Config struct {
	// MaxEvidence caps the ranked list to bound the synthesis prompt.
	MaxEvidence int

	// RelevanceWeight and PriorityWeight blend the ranking score:
	// blended = RelevanceWeight*score + PriorityWeight*strategyWeight.
	RelevanceWeight float64
	PriorityWeight  float64

	// StrategyWeights are per-strategy priority weights in [0,1].
	// Unlisted strategies weigh 0, so exact lookups configured near 1
	// outrank fuzzy search on tie-break.
	StrategyWeights map[string]float64
}

// Aggregator merges and ranks evidence. It is stateless and safe to
// share across concurrent sessions; the evidence accumulator lives in
// the orchestrator and is passed in per call.
type Aggregator struct {
	cfg Config
}

// New creates an aggregator with the given config. Zero-valued weights
// fall back to the 0.7/0.3 defaults so a partially filled config cannot
// rank everything at zero.
func New(cfg Config) *Aggregator {
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 40
	}
	if cfg.RelevanceWeight == 0 && cfg.PriorityWeight == 0 {
		cfg.RelevanceWeight = 0.7
		cfg.PriorityWeight = 0.3
	}
	if cfg.StrategyWeights == nil {
		cfg.StrategyWeights = map[string]float64{}
	}
	return &Aggregator{cfg: cfg}
}

// Merge builds the GroundingContext for one evaluation step.
//
// # Description
//
// The input is the flattened evidence from every completed tool call in
// the current and prior iterations (the orchestrator accumulates it
// monotonically). Merge:
//
//  1. dedupes by source identity, keeping the highest-scoring occurrence
//  2. ranks by blended score, with strategy weight then source id as
//     deterministic tie-breaks (stable order for a fixed input set)
//  3. caps the list at MaxEvidence
//  4. judges sufficiency: non-empty and max relevance >= threshold
//
// # Inputs
//
//   - ctx: tracing only; merge itself is synchronous CPU work.
//   - sessionID: owning session (back-reference on the context).
//   - evidence: flattened evidence, any order, duplicates allowed.
//   - threshold: sufficiency threshold for this tenant/session.
//
// # Outputs
//
//   - *datatypes.GroundingContext: freshly derived; never a cached one.
func (a *Aggregator) Merge(ctx context.Context, sessionID string, evidence []datatypes.Evidence, threshold float64) *datatypes.GroundingContext {
	_, span := tracer.Start(ctx, "Aggregator.Merge")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Int("raw_evidence", len(evidence)),
	)

	// Dedup by source identity, keeping the best-scoring occurrence.
	best := make(map[string]datatypes.Evidence, len(evidence))
	for _, ev := range evidence {
		if ev.SourceID == "" {
			continue
		}
		if cur, ok := best[ev.SourceID]; !ok || ev.Score > cur.Score {
			best[ev.SourceID] = ev
		}
	}

	ranked := make([]datatypes.Evidence, 0, len(best))
	for _, ev := range best {
		ranked = append(ranked, ev)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		bi, bj := a.blended(ranked[i]), a.blended(ranked[j])
		if bi != bj {
			return bi > bj
		}
		wi := a.cfg.StrategyWeights[ranked[i].Strategy]
		wj := a.cfg.StrategyWeights[ranked[j].Strategy]
		if wi != wj {
			return wi > wj
		}
		return ranked[i].SourceID < ranked[j].SourceID
	})

	if len(ranked) > a.cfg.MaxEvidence {
		ranked = ranked[:a.cfg.MaxEvidence]
	}

	gc := &datatypes.GroundingContext{
		SessionID: sessionID,
		Evidence:  ranked,
	}
	for _, ev := range ranked {
		if ev.Score > gc.TopScore {
			gc.TopScore = ev.Score
		}
	}

	switch {
	case len(ranked) == 0:
		gc.Reason = datatypes.ReasonNoRelevantEvidence
	case gc.TopScore < threshold:
		gc.Reason = datatypes.ReasonLowConfidence
	default:
		gc.Sufficient = true
	}

	span.SetAttributes(
		attribute.Int("ranked_evidence", len(ranked)),
		attribute.Bool("sufficient", gc.Sufficient),
		attribute.Float64("top_score", gc.TopScore),
	)
	return gc
}

// blended computes the ranking score for one evidence item.
func (a *Aggregator) blended(ev datatypes.Evidence) float64 {
	return a.cfg.RelevanceWeight*ev.Score + a.cfg.PriorityWeight*a.cfg.StrategyWeights[ev.Strategy]
}
