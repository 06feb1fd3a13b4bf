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

// Evidence is a single retrieved snippet of tenant content.
//
// SourceID is the stable identity used for deduplication: no two
// Evidence items in a sealed GroundingContext share a SourceID.
type Evidence struct {
	// SourceID is the stable content identity (e.g. content id).
	SourceID string `json:"source_id"`

	// Title is the human-readable content title.
	Title string `json:"title"`

	// Snippet is the content excerpt shown to the synthesizer.
	Snippet string `json:"snippet"`

	// Score is the backend-normalized relevance in [0,1].
	Score float64 `json:"score"`

	// Strategy is the retrieval strategy that produced this item.
	Strategy string `json:"strategy"`

	// RetrievedAt is when the backend returned the item.
	RetrievedAt time.Time `json:"retrieved_at"`
}

// InsufficiencyReason explains why a GroundingContext was judged
// insufficient to answer without fabrication.
type InsufficiencyReason string

const (
	// ReasonNone means the context is sufficient.
	ReasonNone InsufficiencyReason = ""

	// ReasonNoRelevantEvidence means retrieval produced no evidence.
	ReasonNoRelevantEvidence InsufficiencyReason = "no_relevant_evidence"

	// ReasonLowConfidence means evidence exists but every item scored
	// below the sufficiency threshold.
	ReasonLowConfidence InsufficiencyReason = "low_confidence"
)

// GroundingContext is the deduplicated, ranked evidence set handed to
// synthesis, plus the sufficiency judgment for this iteration.
//
// A GroundingContext is derived, never persisted on its own: the
// aggregator recomputes it from the accumulated evidence each iteration,
// so sufficiency can never be stale.
type GroundingContext struct {
	// SessionID is a back-reference to the owning session.
	SessionID string `json:"session_id"`

	// Evidence is the ranked, deduplicated evidence list, capped at
	// the configured maximum.
	Evidence []Evidence `json:"evidence"`

	// Sufficient reports whether the evidence clears the threshold.
	Sufficient bool `json:"sufficient"`

	// Reason is set exactly when Sufficient is false.
	Reason InsufficiencyReason `json:"reason,omitempty"`

	// TopScore is the highest evidence score, 0 when empty.
	TopScore float64 `json:"top_score"`
}

// EvidenceRef is a citation pointing at one evidence item.
type EvidenceRef struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Strategy string `json:"strategy"`
}

// Refs returns citation references for every evidence item, in rank order.
func (g *GroundingContext) Refs() []EvidenceRef {
	refs := make([]EvidenceRef, 0, len(g.Evidence))
	for _, ev := range g.Evidence {
		refs = append(refs, EvidenceRef{
			SourceID: ev.SourceID,
			Title:    ev.Title,
			Strategy: ev.Strategy,
		})
	}
	return refs
}

// AnswerResult is the outbound contract of the engine: exactly one of
// three response classes.
//
//   - grounded answer with citations (Grounded true)
//   - explicit "I don't have that information" (Grounded false)
//   - generic transient-failure response (Grounded false, Failed true)
type AnswerResult struct {
	// SessionID identifies the session that produced this answer.
	SessionID string `json:"session_id"`

	// Text is the answer shown to the customer. Never empty.
	Text string `json:"text"`

	// Citations reference the evidence items the answer draws on.
	Citations []EvidenceRef `json:"citations,omitempty"`

	// Grounded reports whether Text is backed by retrieved evidence.
	Grounded bool `json:"grounded"`

	// Failed marks the generic transient-failure class, distinct from
	// an honest "insufficient information" answer.
	Failed bool `json:"failed,omitempty"`

	// Telemetry is the sealed cost/latency record for the session.
	Telemetry *TelemetryRecord `json:"telemetry,omitempty"`
}
