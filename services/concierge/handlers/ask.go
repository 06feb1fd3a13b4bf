// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianSupport/services/concierge/config"
	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
	"github.com/AleutianAI/AleutianSupport/services/concierge/orchestrator"
)

var askTracer = otel.Tracer("aleutian.concierge.handlers")

// AskRequest is the inbound payload for POST /v1/ask.
type AskRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Query    string `json:"query" binding:"required"`

	// Optional per-request limit overrides.
	MaxIterations int     `json:"max_iterations,omitempty"`
	WallBudgetMs  int64   `json:"wall_budget_ms,omitempty"`
	CallTimeoutMs int64   `json:"call_timeout_ms,omitempty"`
	MinScore      float64 `json:"min_score,omitempty"`
}

// HandleAsk answers a customer query.
func HandleAsk(engine *orchestrator.Engine, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()

		var request AskRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind ask request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		span.SetAttributes(
			attribute.String("tenant_id", request.TenantID),
		)

		opts := datatypes.SessionOptions{
			MaxIterations:        request.MaxIterations,
			WallBudget:           time.Duration(request.WallBudgetMs) * time.Millisecond,
			CallTimeout:          time.Duration(request.CallTimeoutMs) * time.Millisecond,
			SufficiencyThreshold: request.MinScore,
		}

		tenant := cfg.Tenant(request.TenantID)
		answer, err := engine.Ask(ctx, tenant, request.Query, opts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		span.SetAttributes(
			attribute.String("session_id", answer.SessionID),
			attribute.Bool("grounded", answer.Grounded),
		)
		c.JSON(http.StatusOK, answer)
	}
}
