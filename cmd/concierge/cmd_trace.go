// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

func runTraceCommand(cmd *cobra.Command, args []string) {
	trace, err := fetchSessionTrace(args[0])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Session %s (tenant %s, state %s)\n", trace.SessionID, trace.TenantID, trace.State)
	fmt.Printf("Query:      %s\n", trace.Query)
	fmt.Printf("Iterations: %d, total %dms\n", trace.Iterations, trace.DurationMs)
	if len(trace.Calls) == 0 {
		fmt.Println("(no tool calls recorded)")
		return
	}
	fmt.Println("Tool calls:")
	for i, call := range trace.Calls {
		fmt.Printf("%d. round %d: %s -> %s (%d results, %dms)\n",
			i+1, call.Iteration, call.Strategy, call.Outcome,
			call.EvidenceCount, call.DurationMs)
	}
}

func fetchSessionTrace(sessionID string) (datatypes.SessionTrace, error) {
	var trace datatypes.SessionTrace
	traceURL := fmt.Sprintf("%s/v1/sessions/%s/trace", getConciergeBaseURL(), sessionID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(traceURL)
	if err != nil {
		return trace, fmt.Errorf("failed to reach the concierge service: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return trace, fmt.Errorf("no trace found for session %s", sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		return trace, fmt.Errorf("concierge returned an error (status %d): %s",
			resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, &trace); err != nil {
		return trace, fmt.Errorf("failed to parse trace response: %w", err)
	}
	return trace, nil
}
