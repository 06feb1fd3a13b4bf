// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synthesis

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
	"github.com/AleutianAI/AleutianSupport/services/concierge/grounding"
	"github.com/AleutianAI/AleutianSupport/services/llm"
)

// scriptedGen replays canned Generate responses.
type scriptedGen struct {
	responses []*llm.GenerateResult
	errs      []error
	calls     int
}

func (s *scriptedGen) Generate(_ context.Context, _ string, _ llm.GenerationParams) (*llm.GenerateResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) && s.responses[i] != nil {
		return s.responses[i], nil
	}
	return &llm.GenerateResult{Text: "ok"}, nil
}

func (s *scriptedGen) ChatWithTools(_ context.Context, _ llm.ToolChatRequest) (*llm.ToolChatResult, error) {
	return nil, errors.New("not used")
}

func groundedConstraint(ids ...string) *grounding.SynthesisConstraint {
	gc := &datatypes.GroundingContext{Sufficient: true}
	for _, id := range ids {
		gc.Evidence = append(gc.Evidence, datatypes.Evidence{
			SourceID: id, Title: "t-" + id, Snippet: "s-" + id, Score: 0.8,
		})
	}
	return grounding.NewGuard().Enforce(gc)
}

func TestSynthesize_UncertaintyModeSkipsProvider(t *testing.T) {
	client := &scriptedGen{}
	constraint := grounding.NewGuard().Enforce(&datatypes.GroundingContext{
		Reason: datatypes.ReasonNoRelevantEvidence,
	})

	res, err := New(client).Synthesize(context.Background(), "q", constraint)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 0 {
		t.Errorf("uncertainty mode must not call the provider, got %d calls", client.calls)
	}
	if res.Text != grounding.UncertaintyTemplate {
		t.Errorf("expected the fixed template, got %q", res.Text)
	}
	if res.Grounded || res.Failed {
		t.Errorf("uncertainty result flagged wrong: %+v", res)
	}
	if len(res.Citations) != 0 {
		t.Error("uncertainty result must not cite evidence")
	}
}

func TestSynthesize_GroundedAnswerWithCitations(t *testing.T) {
	client := &scriptedGen{responses: []*llm.GenerateResult{{
		Text:  "Yes, the Blue Widget is in stock [prod-42]. See also [prod-42] and [phantom-9].",
		Usage: llm.Usage{PromptTokens: 300, CompletionTokens: 50},
		Model: "gpt-4o-mini",
	}}}

	res, err := New(client).Synthesize(context.Background(), "blue widget?", groundedConstraint("prod-42", "faq-7"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Grounded {
		t.Error("expected grounded result")
	}
	if len(res.Citations) != 1 || res.Citations[0] != "prod-42" {
		t.Errorf("expected deduped allowed citations [prod-42], got %v", res.Citations)
	}
	if res.Usage.Total() != 350 {
		t.Errorf("usage not carried: %+v", res.Usage)
	}
}

func TestSynthesize_RetriesWithBackoff(t *testing.T) {
	client := &scriptedGen{
		errs: []error{errors.New("blip")},
		responses: []*llm.GenerateResult{
			nil,
			{Text: "answer [a]"},
		},
	}

	res, err := New(client).Synthesize(context.Background(), "q", groundedConstraint("a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", client.calls)
	}
	if !res.Grounded || res.Text != "answer [a]" {
		t.Errorf("retry result not used: %+v", res)
	}
}

func TestSynthesize_ExhaustionReturnsFailureTemplate(t *testing.T) {
	outage := errors.New("outage")
	client := &scriptedGen{errs: []error{outage, outage, outage}}

	res, err := New(client).Synthesize(context.Background(), "q", groundedConstraint("a"))
	if !errors.Is(err, ErrSynthesisUnavailable) {
		t.Fatalf("expected ErrSynthesisUnavailable, got %v", err)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts (initial + 2 retries), got %d", client.calls)
	}
	if res == nil || res.Text != grounding.FailureTemplate {
		t.Fatalf("expected the failure template alongside the error, got %+v", res)
	}
	if !res.Failed || res.Grounded {
		t.Errorf("failure result flagged wrong: %+v", res)
	}
}

func TestSynthesize_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedGen{errs: []error{errors.New("blip"), errors.New("blip"), errors.New("blip")}}

	res, err := New(client).Synthesize(ctx, "q", groundedConstraint("a"))
	if !errors.Is(err, ErrSynthesisUnavailable) {
		t.Fatalf("expected ErrSynthesisUnavailable, got %v", err)
	}
	// First attempt runs, then the backoff sleep observes cancellation.
	if client.calls != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", client.calls)
	}
	if res.Text != grounding.FailureTemplate {
		t.Errorf("expected failure template, got %q", res.Text)
	}
}
