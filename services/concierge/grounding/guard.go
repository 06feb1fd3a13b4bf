// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grounding constrains answer synthesis to retrieved evidence.
//
// The guard operates on the input side of synthesis: it translates a
// GroundingContext into a SynthesisConstraint that either enumerates the
// exact evidence the model may cite, or forces a fixed uncertainty
// admission with no free-form generation at all. It does not re-parse
// the synthesized text afterwards; holding the model to the constraint
// is the synthesizer's prompt contract, and measuring compliance is a
// quality-evaluation concern that lives outside the serving path.
package grounding

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// UncertaintyTemplate is the exact text returned to the user when the
// evidence set cannot support an answer. It is deliberately a constant:
// the whole point of the insufficiency path is that the model never gets
// to improvise, so there is nothing to generate.
const UncertaintyTemplate = "I don't have enough information in the " +
	"available content to answer that. Could you rephrase your question, " +
	"or ask about something else I can help with?"

// FailureTemplate is the generic transient-failure text used when the
// language-model provider is unavailable after retries. Distinct from
// UncertaintyTemplate so callers and dashboards can tell "we looked and
// found nothing" apart from "we could not look".
const FailureTemplate = "Sorry, something went wrong while looking that " +
	"up. Please try again in a moment."

// Mode selects how the synthesizer is allowed to respond.
type Mode int

const (
	// ModeGrounded permits free-form generation constrained to the
	// enumerated evidence set.
	ModeGrounded Mode = iota

	// ModeUncertainty forbids generation; the fixed template is the
	// entire response.
	ModeUncertainty
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	switch m {
	case ModeGrounded:
		return "grounded"
	case ModeUncertainty:
		return "uncertainty"
	default:
		return "unknown"
	}
}

// SynthesisConstraint is the contract handed to the synthesizer.
//
// When Mode is ModeUncertainty, FixedResponse carries the complete
// answer text and Evidence is empty; the synthesizer must not issue a
// generation call. When Mode is ModeGrounded, Evidence enumerates the
// only material the model may draw on and Instructions carries the
// prompt preamble binding claims to citations.
type SynthesisConstraint struct {
	Mode          Mode
	Evidence      []datatypes.Evidence
	AllowedIDs    map[string]struct{}
	Instructions  string
	FixedResponse string
	Reason        datatypes.InsufficiencyReason
}

// CiteAllowed reports whether the given source id may appear as a
// citation under this constraint.
func (c *SynthesisConstraint) CiteAllowed(sourceID string) bool {
	_, ok := c.AllowedIDs[sourceID]
	return ok
}

// Guard builds synthesis constraints from grounding contexts. Stateless;
// safe for concurrent use.
type Guard struct{}

// NewGuard creates a Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Enforce derives the SynthesisConstraint for a grounding context.
//
// # Description
//
// An insufficient context (empty evidence, or nothing above the
// sufficiency threshold) yields a ModeUncertainty constraint whose
// FixedResponse is UncertaintyTemplate verbatim. A sufficient context
// yields a ModeGrounded constraint whose Instructions enumerate every
// evidence item with its source id, and whose AllowedIDs set bounds the
// citations the synthesizer may emit.
//
// A nil context is treated as insufficient; the caller should never
// produce one, but the guard fails closed rather than panicking.
func (g *Guard) Enforce(gc *datatypes.GroundingContext) *SynthesisConstraint {
	if gc == nil || !gc.Sufficient || len(gc.Evidence) == 0 {
		reason := datatypes.ReasonNoRelevantEvidence
		if gc != nil && gc.Reason != datatypes.ReasonNone {
			reason = gc.Reason
		}
		return &SynthesisConstraint{
			Mode:          ModeUncertainty,
			AllowedIDs:    map[string]struct{}{},
			FixedResponse: UncertaintyTemplate,
			Reason:        reason,
		}
	}

	allowed := make(map[string]struct{}, len(gc.Evidence))
	for _, ev := range gc.Evidence {
		allowed[ev.SourceID] = struct{}{}
	}

	return &SynthesisConstraint{
		Mode:         ModeGrounded,
		Evidence:     gc.Evidence,
		AllowedIDs:   allowed,
		Instructions: groundedInstructions(gc.Evidence),
	}
}

// groundedInstructions renders the prompt preamble for a grounded
// synthesis call. Evidence order is preserved from the ranked context so
// the strongest material appears first in the prompt.
func groundedInstructions(evidence []datatypes.Evidence) string {
	var b strings.Builder
	b.WriteString("Answer the customer's question using ONLY the evidence below. ")
	b.WriteString("Every factual claim must be supported by at least one evidence item; ")
	b.WriteString("cite supporting items by their id in square brackets, e.g. [")
	b.WriteString(evidence[0].SourceID)
	b.WriteString("]. If a detail is not present in the evidence, do not state it. ")
	b.WriteString("Never cite an id that is not listed.\n\nEvidence:\n")
	for i, ev := range evidence {
		fmt.Fprintf(&b, "%d. [%s] %s\n%s\n", i+1, ev.SourceID, ev.Title, ev.Snippet)
	}
	return b.String()
}
