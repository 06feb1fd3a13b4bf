// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Engine.MaxIterations != datatypes.DefaultMaxIterations {
		t.Errorf("expected %d max iterations, got %d", datatypes.DefaultMaxIterations, cfg.Engine.MaxIterations)
	}
	if cfg.Engine.SufficiencyThreshold != DefaultSufficiencyThreshold {
		t.Errorf("expected threshold %v, got %v", DefaultSufficiencyThreshold, cfg.Engine.SufficiencyThreshold)
	}
	if cfg.Engine.MaxEvidence != DefaultMaxEvidence {
		t.Errorf("expected max evidence %d, got %d", DefaultMaxEvidence, cfg.Engine.MaxEvidence)
	}
	if cfg.Engine.RelevanceWeight != DefaultRelevanceWeight || cfg.Engine.PriorityWeight != DefaultPriorityWeight {
		t.Errorf("expected default blend weights, got %v/%v", cfg.Engine.RelevanceWeight, cfg.Engine.PriorityWeight)
	}
	if cfg.Weaviate.Class != "TenantContent" {
		t.Errorf("expected default class, got %s", cfg.Weaviate.Class)
	}
}

func TestLoad_File(t *testing.T) {
	raw := `
server:
  port: "9000"
weaviate:
  host: "weaviate:8080"
  scheme: http
  class: StoreContent
llm:
  model: gpt-4o
engine:
  max_iterations: 2
  sufficiency_threshold: 0.25
  strategy_weights:
    lookup_entity: 1.0
    search_content: 0.4
rates:
  gpt-4o:
    input_per_token: 0.0000025
    output_per_token: 0.00001
tenants:
  acme:
    enabled_strategies: [search_content, lookup_entity]
    sufficiency_threshold: 0.3
`
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Server.Port)
	}
	if cfg.Engine.MaxIterations != 2 {
		t.Errorf("expected 2 iterations, got %d", cfg.Engine.MaxIterations)
	}
	if cfg.Rates["gpt-4o"].OutputPerToken != 0.00001 {
		t.Errorf("unexpected output rate %v", cfg.Rates["gpt-4o"].OutputPerToken)
	}

	t.Run("tenant overrides resolve", func(t *testing.T) {
		tc := cfg.Tenant("acme")
		if tc.SufficiencyThreshold != 0.3 {
			t.Errorf("expected 0.3 threshold, got %v", tc.SufficiencyThreshold)
		}
		if !tc.StrategyEnabled("search_content") {
			t.Error("search_content should be enabled")
		}
		if tc.StrategyEnabled("search_products") {
			t.Error("search_products should be disabled for acme")
		}
	})

	t.Run("unknown tenant gets defaults", func(t *testing.T) {
		tc := cfg.Tenant("unknown")
		if tc.SufficiencyThreshold != 0.25 {
			t.Errorf("expected engine threshold 0.25, got %v", tc.SufficiencyThreshold)
		}
		if !tc.StrategyEnabled("search_products") {
			t.Error("unknown tenants should have all strategies enabled")
		}
		if tc.StrategyWeights["lookup_entity"] != 1.0 {
			t.Errorf("expected inherited weight, got %v", tc.StrategyWeights["lookup_entity"])
		}
	})
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("engine: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	raw := `
engine:
  sufficiency_threshold: 3.5
`
	path := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for threshold > 1")
	}
}

func TestInfluxConfig_Enabled(t *testing.T) {
	if (InfluxConfig{}).Enabled() {
		t.Error("empty influx config should be disabled")
	}
	if !(InfluxConfig{URL: "http://localhost:8086"}).Enabled() {
		t.Error("influx config with URL should be enabled")
	}
}
