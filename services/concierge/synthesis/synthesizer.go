// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synthesis produces the final user-facing answer from a
// grounding constraint: a constrained generation call when evidence is
// sufficient, or the fixed uncertainty admission when it is not.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
	"github.com/AleutianAI/AleutianSupport/services/concierge/grounding"
	"github.com/AleutianAI/AleutianSupport/services/llm"
)

var tracer = otel.Tracer("aleutian.concierge.synthesis")

// ErrSynthesisUnavailable wraps provider failures that survived every
// retry. The caller still receives a usable Result (the generic failure
// text) alongside it.
var ErrSynthesisUnavailable = errors.New("synthesis unavailable")

const (
	backoffBase   = 500 * time.Millisecond
	backoffFactor = 2
	maxRetries    = 2
)

// citationPattern matches [source-id] citations in generated text.
var citationPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// Result is the synthesized answer.
type Result struct {
	// Text is the user-facing answer. Never empty: uncertainty and
	// failure paths fill it from the fixed templates.
	Text string

	// Citations are the evidence ids the answer cites, deduplicated,
	// in first-appearance order, filtered to the allowed set.
	Citations []string

	// Grounded is true only for a generated answer under a grounded
	// constraint.
	Grounded bool

	// Failed marks the generic transient-failure response.
	Failed bool

	Usage datatypes.TokenUsage
	Model string
}

// Synthesizer issues the final generation call. Stateless apart from the
// shared client; safe for concurrent use.
type Synthesizer struct {
	client llm.LLMClient
	params llm.GenerationParams
}

// New creates a Synthesizer on the given client.
func New(client llm.LLMClient) *Synthesizer {
	maxTokens := 1024
	return &Synthesizer{
		client: client,
		params: llm.GenerationParams{MaxTokens: &maxTokens},
	}
}

// Synthesize produces the answer for a query under a constraint.
//
// # Description
//
// ModeUncertainty short-circuits to the fixed template without any
// provider call. ModeGrounded issues one generation call, retrying up to
// two times with exponential backoff (500ms base, factor 2) on provider
// errors. When every attempt fails, the returned Result carries the
// generic failure text and Failed=true, and the error wraps
// ErrSynthesisUnavailable so the caller can mark the session failed.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, constraint *grounding.SynthesisConstraint) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Synthesizer.Synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("mode", constraint.Mode.String()))

	if constraint.Mode == grounding.ModeUncertainty {
		return &Result{Text: constraint.FixedResponse}, nil
	}

	prompt := fmt.Sprintf("%s\nCustomer question: %s", constraint.Instructions, query)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffBase * time.Duration(pow(backoffFactor, attempt-1))
			slog.Warn("synthesis attempt failed, backing off",
				"attempt", attempt, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		gen, err := s.client.Generate(ctx, prompt, s.params)
		if err != nil {
			lastErr = err
			continue
		}

		return &Result{
			Text:      gen.Text,
			Citations: extractCitations(gen.Text, constraint),
			Grounded:  true,
			Usage: datatypes.TokenUsage{
				PromptTokens:     gen.Usage.PromptTokens,
				CompletionTokens: gen.Usage.CompletionTokens,
			},
			Model: gen.Model,
		}, nil
	}

	span.RecordError(lastErr)
	slog.Error("synthesis retries exhausted", "error", lastErr)
	return &Result{Text: grounding.FailureTemplate, Failed: true},
		fmt.Errorf("%w: %v", ErrSynthesisUnavailable, lastErr)
}

// extractCitations pulls [id] references out of the generated text,
// keeping only ids the constraint permits. Out-of-set citations are
// dropped rather than failing the answer; the prompt forbids them and
// the evidence refs returned to the caller stay trustworthy either way.
func extractCitations(text string, constraint *grounding.SynthesisConstraint) []string {
	var cited []string
	seen := map[string]bool{}
	for _, m := range citationPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if seen[id] || !constraint.CiteAllowed(id) {
			continue
		}
		seen[id] = true
		cited = append(cited, id)
	}
	return cited
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func pow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
