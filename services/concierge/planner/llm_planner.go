// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
	"github.com/AleutianAI/AleutianSupport/services/llm"
)

var tracer = otel.Tracer("aleutian.concierge.planner")

const systemPrompt = "You are the retrieval planner for a customer-support " +
	"assistant. Given the customer's question and the search tools " +
	"available, call the tools most likely to find the content needed to " +
	"answer. Call several tools when the question spans topics. If prior " +
	"search results are shown and were judged insufficient, choose " +
	"different tools or different parameters rather than repeating the " +
	"same call. If no tool could plausibly help, call none."

// evidenceDigestLimit bounds how many prior results the planning prompt
// replays. The model only needs a sense of what was found, not the full
// grounding set.
const evidenceDigestLimit = 10

// LLMPlanner implements Planner on a function-calling chat model.
type LLMPlanner struct {
	client llm.LLMClient
	params llm.GenerationParams
}

// NewLLMPlanner creates a planner on the given client.
func NewLLMPlanner(client llm.LLMClient) *LLMPlanner {
	temp := float32(0.0)
	return &LLMPlanner{
		client: client,
		// Deterministic-ish tool selection; creativity belongs in
		// synthesis, not planning.
		params: llm.GenerationParams{Temperature: &temp},
	}
}

// Plan implements the Planner interface.
//
// # Description
//
// Issues one function-calling turn with the tenant's tool specs. A
// provider failure is retried once; a second failure returns
// ErrPlannerUnavailable. Invocations naming unknown tools are passed
// through untouched: the catalog validates on dispatch and records the
// rejection, which keeps the skip observable per call.
func (p *LLMPlanner) Plan(ctx context.Context, req Request) (*Plan, error) {
	ctx, span := tracer.Start(ctx, "LLMPlanner.Plan")
	defer span.End()
	span.SetAttributes(
		attribute.Int("iteration", req.Iteration),
		attribute.Int("tools", len(req.Tools)),
		attribute.Int("prior_evidence", len(req.Evidence)),
	)

	chatReq := llm.ToolChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: buildUserPrompt(req)},
		},
		Params: p.params,
	}
	for _, spec := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, llm.ToolDef{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Schema.JSONSchema(),
		})
	}

	resp, err := p.client.ChatWithTools(ctx, chatReq)
	if err != nil {
		slog.Warn("planning call failed, retrying once", "error", err, "iteration", req.Iteration)
		resp, err = p.client.ChatWithTools(ctx, chatReq)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrPlannerUnavailable, err)
	}

	plan := &Plan{
		Usage: datatypes.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
		Model: resp.Model,
	}
	for _, inv := range resp.Invocations {
		plan.Proposals = append(plan.Proposals, datatypes.ToolProposal{
			Strategy: inv.Name,
			Params:   inv.Arguments,
		})
	}
	plan.Proposals = datatypes.DedupeProposals(plan.Proposals)

	span.SetAttributes(attribute.Int("proposals", len(plan.Proposals)))
	slog.Debug("planning round complete",
		"iteration", req.Iteration, "proposals", len(plan.Proposals))
	return plan, nil
}

// buildUserPrompt renders the query, a digest of prior evidence, and the
// insufficiency feedback for refinement rounds.
func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer question: %s\n", req.Query)

	if len(req.Evidence) > 0 {
		b.WriteString("\nResults found so far (id, relevance, title):\n")
		digest := req.Evidence
		if len(digest) > evidenceDigestLimit {
			digest = digest[:evidenceDigestLimit]
		}
		for _, ev := range digest {
			fmt.Fprintf(&b, "- %s (%.2f) %s\n", ev.SourceID, ev.Score, ev.Title)
		}
	}

	switch req.Reason {
	case datatypes.ReasonNoRelevantEvidence:
		b.WriteString("\nNo relevant results were found yet. Try different tools or broader parameters.\n")
	case datatypes.ReasonLowConfidence:
		b.WriteString("\nThe results found so far are weak matches. Try to find more specific content.\n")
	}
	return b.String()
}
