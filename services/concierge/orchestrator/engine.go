// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator runs the per-query session loop: plan tool calls,
// execute them in a bounded pool, evaluate evidence sufficiency, refine
// or synthesize, and seal telemetry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSupport/services/concierge/aggregate"
	"github.com/AleutianAI/AleutianSupport/services/concierge/catalog"
	"github.com/AleutianAI/AleutianSupport/services/concierge/config"
	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
	"github.com/AleutianAI/AleutianSupport/services/concierge/grounding"
	"github.com/AleutianAI/AleutianSupport/services/concierge/observability"
	"github.com/AleutianAI/AleutianSupport/services/concierge/planner"
	"github.com/AleutianAI/AleutianSupport/services/concierge/synthesis"
	"github.com/AleutianAI/AleutianSupport/services/concierge/telemetry"
)

var tracer = otel.Tracer("aleutian.concierge.orchestrator")

// synthesisGrace is how long synthesis may run after the session wall
// budget has expired. The budget bounds retrieval; the customer still
// gets an answer assembled from whatever evidence exists.
const synthesisGrace = 10 * time.Second

// CatalogProvider resolves the deployment strategy catalog for a
// tenant. Backends carry the tenant's corpus scope, so catalogs are
// per-tenant even before enable/disable restriction.
type CatalogProvider interface {
	CatalogFor(tenantID string) *catalog.Catalog
}

// CatalogProviderFunc adapts a function to CatalogProvider.
type CatalogProviderFunc func(tenantID string) *catalog.Catalog

// CatalogFor implements the CatalogProvider interface.
func (f CatalogProviderFunc) CatalogFor(tenantID string) *catalog.Catalog {
	return f(tenantID)
}

// Engine is the query orchestrator. One Engine serves all tenants; each
// Ask call runs an independent session.
//
// # Thread Safety
//
// Engine is safe for concurrent use. The catalog, planner, synthesizer
// and accountant are shared read-only or internally synchronized; all
// per-query state lives in the session, confined to the Ask goroutine
// and its worker pool.
type Engine struct {
	catalogs CatalogProvider
	planner  planner.Planner
	guard    *grounding.Guard
	synth    *synthesis.Synthesizer
	acct     *telemetry.Accountant
	cfg      config.EngineConfig
	sm       *StateMachine
}

// NewEngine wires the engine from its collaborators.
func NewEngine(catalogs CatalogProvider, pl planner.Planner, synth *synthesis.Synthesizer, acct *telemetry.Accountant, cfg config.EngineConfig) *Engine {
	return &Engine{
		catalogs: catalogs,
		planner:  pl,
		guard:    grounding.NewGuard(),
		synth:    synth,
		acct:     acct,
		cfg:      cfg,
		sm:       NewStateMachine(),
	}
}

// Ask answers one customer query for a tenant.
//
// # Description
//
// Runs the full session loop under the wall-clock budget. The returned
// AnswerResult is always one of exactly three classes: a grounded answer
// with citations, the fixed insufficient-information admission, or the
// generic transient-failure response. Backend failures never surface
// here; only planner or synthesizer exhaustion produces the failure
// class.
//
// # Inputs
//
//   - ctx: request context; cancellation propagates into every tool and
//     model call.
//   - tenant: resolved immutable tenant view (enabled strategies,
//     threshold, strategy weights).
//   - query: the user utterance, verbatim.
//   - opts: per-request limit overrides; zero values take defaults.
//
// # Outputs
//
//   - *datatypes.AnswerResult: never nil.
//   - error: only for unusable input (empty query or tenant id).
func (e *Engine) Ask(ctx context.Context, tenant config.TenantConfig, query string, opts datatypes.SessionOptions) (*datatypes.AnswerResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if tenant.TenantID == "" {
		return nil, fmt.Errorf("tenant id must not be empty")
	}

	e.seedOptions(&opts)
	session := datatypes.NewSearchSession(tenant.TenantID, query, opts)
	threshold := e.threshold(tenant, session.Options)

	ctx, span := tracer.Start(ctx, "Engine.Ask")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", session.ID),
		attribute.String("tenant_id", tenant.TenantID),
	)

	e.acct.Begin(session.ID, tenant.TenantID)
	slog.Info("session started",
		"session_id", session.ID, "tenant_id", tenant.TenantID,
		"max_iterations", session.Options.MaxIterations,
		"wall_budget", session.Options.WallBudget)

	budgetCtx, cancel := context.WithTimeout(ctx, session.Options.WallBudget)
	defer cancel()

	cat := e.catalogs.CatalogFor(tenant.TenantID).Restrict(tenant.EnabledStrategies)
	specs := cat.Describe()
	agg := aggregate.New(aggregate.Config{
		MaxEvidence:     e.cfg.MaxEvidence,
		RelevanceWeight: e.cfg.RelevanceWeight,
		PriorityWeight:  e.cfg.PriorityWeight,
		StrategyWeights: e.mergedWeights(tenant),
	})

	var (
		collected []datatypes.Evidence
		gc        *datatypes.GroundingContext
		reason    = datatypes.ReasonNone
	)

	for iter := 1; iter <= session.Options.MaxIterations; iter++ {
		session.Iteration = iter

		planStart := time.Now()
		plan, err := e.planner.Plan(budgetCtx, planner.Request{
			Query:     query,
			Tools:     specs,
			Evidence:  priorEvidence(gc),
			Reason:    reason,
			Iteration: iter,
		})
		if err != nil {
			return e.fail(ctx, session, err), nil
		}
		e.acct.RecordPlan(session.ID, plan.Model, plan.Usage, time.Since(planStart))

		if len(plan.Proposals) == 0 {
			// Nothing to retrieve. On the first round this is an
			// immediate insufficiency; later rounds answer from what
			// already exists.
			slog.Debug("planner proposed no tools",
				"session_id", session.ID, "iteration", iter)
			break
		}

		e.transition(session, datatypes.StateExecuting)
		collected = append(collected, e.execute(budgetCtx, session, cat, plan.Proposals)...)

		gc = agg.Merge(ctx, session.ID, collected, threshold)
		if !gc.Sufficient {
			observability.RecordInsufficiency(string(gc.Reason))
		}

		if gc.Sufficient || budgetCtx.Err() != nil || iter == session.Options.MaxIterations {
			break
		}
		reason = gc.Reason
		e.transition(session, datatypes.StateRefining)
	}

	// Sufficiency is recomputed, never reused stale: cover the paths
	// that broke out before merging (zero proposals, first round).
	if gc == nil {
		gc = agg.Merge(ctx, session.ID, collected, threshold)
		if !gc.Sufficient {
			observability.RecordInsufficiency(string(gc.Reason))
		}
	}

	e.transition(session, datatypes.StateSynthesizing)
	constraint := e.guard.Enforce(gc)

	// Synthesis runs on its own deadline so an exhausted retrieval
	// budget still yields an answer instead of an instant timeout.
	synthCtx, synthCancel := context.WithTimeout(context.WithoutCancel(ctx), synthesisGrace)
	defer synthCancel()

	synthStart := time.Now()
	res, synthErr := e.synth.Synthesize(synthCtx, query, constraint)
	e.acct.RecordSynthesis(session.ID, res.Model, res.Usage, time.Since(synthStart))
	if synthErr != nil {
		return e.fail(ctx, session, synthErr), nil
	}

	e.transition(session, datatypes.StateDone)
	return e.seal(ctx, session, gc, res), nil
}

// Trace returns the persisted trace export for a finished session.
func (e *Engine) Trace(sessionID string) (*datatypes.SessionTrace, error) {
	return e.acct.Trace(sessionID)
}

// execute dispatches the proposals over a bounded worker pool. Every
// call gets its own timeout; failures and timeouts are recorded on the
// call and contribute no evidence. The error group never carries an
// error, it is used purely as a bounded waitgroup.
func (e *Engine) execute(ctx context.Context, session *datatypes.SearchSession, cat *catalog.Catalog, proposals []datatypes.ToolProposal) []datatypes.Evidence {
	ctx, span := tracer.Start(ctx, "Engine.execute")
	defer span.End()
	span.SetAttributes(attribute.Int("proposals", len(proposals)))

	var (
		mu        sync.Mutex
		collected []datatypes.Evidence
	)

	g := new(errgroup.Group)
	g.SetLimit(session.Options.Concurrency)

	for _, proposal := range proposals {
		call := datatypes.NewToolCall(session.ID, proposal.Strategy, proposal.Params, session.Iteration)
		session.Calls = append(session.Calls, call)

		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, session.Options.CallTimeout)
			defer cancel()

			result, err := cat.Invoke(callCtx, call.Strategy, session.Query, call.Params)
			switch {
			case err == nil:
				call.Complete(datatypes.OutcomeOK, len(result.Items), "")
				mu.Lock()
				collected = append(collected, result.Items...)
				mu.Unlock()
				if result.Truncated {
					slog.Debug("tool call truncated by deadline",
						"session_id", session.ID, "strategy", call.Strategy)
				}
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
				call.Complete(datatypes.OutcomeTimeout, 0, err.Error())
				slog.Warn("tool call timed out",
					"session_id", session.ID, "strategy", call.Strategy)
			default:
				call.Complete(datatypes.OutcomeError, 0, err.Error())
				slog.Warn("tool call failed",
					"session_id", session.ID, "strategy", call.Strategy, "error", err)
			}

			e.acct.RecordToolCall(session.ID, call)
			observability.RecordToolCall(call.Strategy, string(call.Outcome), call.Duration())
			return nil
		})
	}

	g.Wait()
	return collected
}

// seal finishes a successful session and assembles the answer.
func (e *Engine) seal(ctx context.Context, session *datatypes.SearchSession, gc *datatypes.GroundingContext, res *synthesis.Result) *datatypes.AnswerResult {
	session.CompletedAt = time.Now().UTC()

	record := e.acct.Seal(context.WithoutCancel(ctx), session.ID)
	e.acct.SaveTrace(session.Trace())

	class := observability.ClassInsufficient
	if res.Grounded {
		class = observability.ClassGrounded
	}
	observability.RecordSession(session.TenantID, class, session.Elapsed(), session.Iteration, record.CostUSD)
	slog.Info("session done",
		"session_id", session.ID, "grounded", res.Grounded,
		"iterations", session.Iteration, "cost_usd", record.CostUSD,
		"duration_ms", record.DurationMs)

	return &datatypes.AnswerResult{
		SessionID: session.ID,
		Text:      res.Text,
		Citations: citationRefs(res.Citations, gc),
		Grounded:  res.Grounded,
		Telemetry: record,
	}
}

// fail terminates a session on planner or synthesizer exhaustion with
// the generic failure response.
func (e *Engine) fail(ctx context.Context, session *datatypes.SearchSession, cause error) *datatypes.AnswerResult {
	slog.Error("session failed",
		"session_id", session.ID, "state", session.State, "error", cause)

	e.transition(session, datatypes.StateFailed)
	session.CompletedAt = time.Now().UTC()

	record := e.acct.Seal(context.WithoutCancel(ctx), session.ID)
	e.acct.SaveTrace(session.Trace())
	observability.RecordSession(session.TenantID, observability.ClassFailed, session.Elapsed(), session.Iteration, record.CostUSD)

	return &datatypes.AnswerResult{
		SessionID: session.ID,
		Text:      grounding.FailureTemplate,
		Failed:    true,
		Telemetry: record,
	}
}

// transition applies a state change. The loop only requests edges the
// machine allows, so a rejection is a programming error worth logging
// loudly, not a user-facing failure.
func (e *Engine) transition(session *datatypes.SearchSession, to datatypes.SessionState) {
	if err := e.sm.Transition(session, to); err != nil {
		slog.Error("state transition rejected",
			"session_id", session.ID, "error", err)
	}
}

// seedOptions fills unset per-request options from the engine
// configuration. Anything still unset after this falls back to the
// datatypes defaults in EnsureDefaults.
func (e *Engine) seedOptions(opts *datatypes.SessionOptions) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = e.cfg.MaxIterations
	}
	if opts.WallBudget <= 0 {
		opts.WallBudget = e.cfg.WallBudget.Std()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = e.cfg.CallTimeout.Std()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = e.cfg.Concurrency
	}
}

// threshold resolves the effective sufficiency threshold: request
// override, then tenant, then engine default.
func (e *Engine) threshold(tenant config.TenantConfig, opts datatypes.SessionOptions) float64 {
	if opts.SufficiencyThreshold > 0 {
		return opts.SufficiencyThreshold
	}
	if tenant.SufficiencyThreshold > 0 {
		return tenant.SufficiencyThreshold
	}
	return config.DefaultSufficiencyThreshold
}

// mergedWeights overlays tenant strategy weights on the engine's.
func (e *Engine) mergedWeights(tenant config.TenantConfig) map[string]float64 {
	merged := make(map[string]float64, len(e.cfg.StrategyWeights)+len(tenant.StrategyWeights))
	for name, w := range e.cfg.StrategyWeights {
		merged[name] = w
	}
	for name, w := range tenant.StrategyWeights {
		merged[name] = w
	}
	return merged
}

func priorEvidence(gc *datatypes.GroundingContext) []datatypes.Evidence {
	if gc == nil {
		return nil
	}
	return gc.Evidence
}

// citationRefs resolves cited ids to evidence references, preserving
// citation order.
func citationRefs(cited []string, gc *datatypes.GroundingContext) []datatypes.EvidenceRef {
	if len(cited) == 0 || gc == nil {
		return nil
	}
	byID := make(map[string]datatypes.Evidence, len(gc.Evidence))
	for _, ev := range gc.Evidence {
		byID[ev.SourceID] = ev
	}
	var refs []datatypes.EvidenceRef
	for _, id := range cited {
		ev, ok := byID[id]
		if !ok {
			continue
		}
		refs = append(refs, datatypes.EvidenceRef{
			SourceID: ev.SourceID,
			Title:    ev.Title,
			Strategy: ev.Strategy,
		})
	}
	return refs
}
