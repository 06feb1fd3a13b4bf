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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// getConciergeBaseURL resolves the service address, preferring the
// environment so tests and compose deployments can redirect the CLI.
func getConciergeBaseURL() string {
	if url := strings.Trim(os.Getenv("CONCIERGE_SERVICE_URL"), "\"' "); url != "" {
		return url
	}
	return "http://localhost:12310"
}

func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	fmt.Printf("Asking (tenant '%s'): %s\n", tenantID, question)
	fmt.Println("---")

	answer, err := sendAskRequest(question)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("\nAnswer:\n%s\n", answer.Text)
	if len(answer.Citations) > 0 {
		fmt.Println("\nSources Used:")
		for i, ref := range answer.Citations {
			fmt.Printf("%d. [%s] %s (via %s)\n", i+1, ref.SourceID, ref.Title, ref.Strategy)
		}
	} else if !answer.Grounded {
		fmt.Println("\n(No relevant content found in the corpus)")
	}
	if showTelemetry && answer.Telemetry != nil {
		fmt.Printf("\nSession %s: %d prompt + %d completion tokens, $%.5f, %dms\n",
			answer.SessionID,
			answer.Telemetry.PromptTokens,
			answer.Telemetry.CompletionTokens,
			answer.Telemetry.CostUSD,
			answer.Telemetry.DurationMs)
	}
	fmt.Println("\n---")
}

func sendAskRequest(question string) (datatypes.AnswerResult, error) {
	var answer datatypes.AnswerResult
	postBody, err := json.Marshal(map[string]interface{}{
		"tenant_id":      tenantID,
		"query":          question,
		"min_score":      minScore,
		"max_iterations": maxIterations,
		"wall_budget_ms": budgetMs,
	})
	if err != nil {
		return answer, fmt.Errorf("failed to create request body: %w", err)
	}

	askURL := fmt.Sprintf("%s/v1/ask", getConciergeBaseURL())

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Post(askURL, "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return answer, fmt.Errorf("failed to reach the concierge service: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return answer, fmt.Errorf("concierge returned an error (status %d): %s",
			resp.StatusCode, string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, &answer); err != nil {
		log.Printf("Raw response from concierge: %s", string(bodyBytes))
		return answer, fmt.Errorf("failed to parse response from concierge: %w", err)
	}
	return answer, nil
}
