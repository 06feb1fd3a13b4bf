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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianSupport/services/concierge/orchestrator"
	"github.com/AleutianAI/AleutianSupport/services/concierge/telemetry"
)

// HandleSessionTrace exposes the per-session debugging trace: every tool
// call with outcome, timing and evidence counts.
func HandleSessionTrace(engine *orchestrator.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}

		trace, err := engine.Trace(sessionID)
		if errors.Is(err, telemetry.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			slog.Error("Failed to load session trace", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "trace unavailable"})
			return
		}
		c.JSON(http.StatusOK, trace)
	}
}
