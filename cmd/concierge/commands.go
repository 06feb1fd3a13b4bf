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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	tenantID        string
	minScore        float64
	maxIterations   int
	budgetMs        int64
	showTelemetry   bool
	serveConfigPath string

	rootCmd = &cobra.Command{
		Use:   "concierge",
		Short: "A cli for the Aleutian Concierge grounded-answer service",
		Long: `Concierge answers customer questions from a tenant's own
				content corpus and refuses to improvise when the corpus
				has nothing relevant.`,
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a question against the tenant's content corpus",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_ask.go
	}

	traceCmd = &cobra.Command{
		Use:   "trace [session_id]",
		Short: "Dumps the execution trace of a past session",
		Args:  cobra.ExactArgs(1),
		Run:   runTraceCommand, // Defined in cmd_trace.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Runs the concierge service in the foreground",
		Run:   runServeCommand, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "default",
		"Tenant whose corpus and strategy config to use")

	askCmd.Flags().Float64Var(&minScore, "min-score", 0,
		"Sufficiency threshold override (0 = tenant default)")
	askCmd.Flags().IntVar(&maxIterations, "max-iterations", 0,
		"Planning round cap override (0 = server default)")
	askCmd.Flags().Int64Var(&budgetMs, "budget-ms", 0,
		"Wall-clock budget override in milliseconds (0 = server default)")
	askCmd.Flags().BoolVar(&showTelemetry, "telemetry", false,
		"Print the session cost and latency summary")

	serveCmd.Flags().StringVar(&serveConfigPath, "config", "",
		"Path to the service config file (default: CONCIERGE_CONFIG or ./config.yaml)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(serveCmd)
}
