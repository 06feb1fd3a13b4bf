// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner turns a user query plus the running evidence state
// into concrete retrieval-tool proposals via the language model's
// function-calling interface.
package planner

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianSupport/services/concierge/catalog"
	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// ErrPlannerUnavailable wraps provider failures that survived the retry.
// The orchestrator maps it to a failed session with the generic
// transient-failure response.
var ErrPlannerUnavailable = errors.New("planner unavailable")

// Request carries everything the planning model sees for one round.
type Request struct {
	// Query is the original user utterance.
	Query string

	// Tools is the catalog's Describe() output for this tenant.
	Tools []catalog.ToolSpec

	// Evidence is the running ranked evidence from prior iterations.
	// Empty on the first round.
	Evidence []datatypes.Evidence

	// Reason explains why the prior round was judged insufficient.
	// ReasonNone on the first round.
	Reason datatypes.InsufficiencyReason

	// Iteration is the 1-based planning round number.
	Iteration int
}

// Plan is one planning round's outcome. An empty Proposals slice means
// the model chose not to call any tool.
type Plan struct {
	Proposals []datatypes.ToolProposal
	Usage     datatypes.TokenUsage
	Model     string
}

// Planner proposes retrieval-tool calls for a query.
//
// Thread Safety: implementations must be safe for concurrent use; one
// instance is shared across all active sessions.
type Planner interface {
	Plan(ctx context.Context, req Request) (*Plan, error)
}
