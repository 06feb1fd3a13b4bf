// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads engine configuration from a YAML file plus
// environment overrides.
//
// Configuration is read once at startup and treated as immutable.
// Per-tenant overrides (enabled strategies, sufficiency threshold,
// strategy priority weights) are resolved here and handed to the engine
// as an immutable TenantConfig at session start; the engine never reads
// configuration mid-session.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// validate is the shared validator instance. validator.Validate caches
// struct metadata, so a single instance is the recommended usage.
var validate = validator.New()

// Config is the full engine configuration.
type Config struct {
	// Server holds HTTP listener settings.
	Server ServerConfig `yaml:"server"`

	// Weaviate holds the content-corpus connection settings.
	Weaviate WeaviateConfig `yaml:"weaviate"`

	// LLM holds provider settings for planning and synthesis.
	LLM LLMConfig `yaml:"llm"`

	// Engine holds orchestration defaults.
	Engine EngineConfig `yaml:"engine"`

	// Telemetry holds the durable-store and sink settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Rates maps model identifiers to per-token USD pricing.
	Rates map[string]datatypes.ModelRate `yaml:"rates"`

	// Tenants maps tenant ids to their overrides. Tenants not listed
	// get the defaults.
	Tenants map[string]TenantOverrides `yaml:"tenants"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port string `yaml:"port" validate:"required"`
}

// WeaviateConfig holds the connection to the tenant content corpus.
type WeaviateConfig struct {
	Host   string `yaml:"host" validate:"required,hostname_port"`
	Scheme string `yaml:"scheme" validate:"required,oneof=http https"`

	// Class is the Weaviate class holding scraped tenant content.
	Class string `yaml:"class" validate:"required"`
}

// LLMConfig holds provider settings for the planner and synthesizer.
type LLMConfig struct {
	// Model is the model identifier used for planning and synthesis.
	Model string `yaml:"model" validate:"required"`

	// BaseURL overrides the provider endpoint (empty = provider default).
	BaseURL string `yaml:"base_url"`

	// RequestsPerSecond rate-limits provider calls. Zero disables.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// Duration wraps time.Duration so YAML can express values like "20s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig holds orchestration defaults. Every field has a sane
// default applied by EnsureDefaults; the YAML only needs deviations.
type EngineConfig struct {
	MaxIterations        int      `yaml:"max_iterations" validate:"gte=0,lte=10"`
	WallBudget           Duration `yaml:"wall_budget"`
	CallTimeout          Duration `yaml:"call_timeout"`
	Concurrency          int      `yaml:"concurrency" validate:"gte=0,lte=64"`
	SufficiencyThreshold float64  `yaml:"sufficiency_threshold" validate:"gte=0,lte=1"`
	MaxEvidence          int      `yaml:"max_evidence" validate:"gte=0,lte=500"`

	// RelevanceWeight and PriorityWeight blend the ranking score:
	// blended = RelevanceWeight*score + PriorityWeight*strategyWeight.
	RelevanceWeight float64 `yaml:"relevance_weight" validate:"gte=0,lte=1"`
	PriorityWeight  float64 `yaml:"priority_weight" validate:"gte=0,lte=1"`

	// StrategyWeights are the per-strategy priority weights in [0,1].
	StrategyWeights map[string]float64 `yaml:"strategy_weights"`
}

// TelemetryConfig holds the durable telemetry settings.
type TelemetryConfig struct {
	// BadgerPath is the directory for the embedded store. Empty means
	// in-memory (tests, lightweight deployments).
	BadgerPath string `yaml:"badger_path"`

	// Influx enables the optional cost/latency sink when URL is set.
	Influx InfluxConfig `yaml:"influx"`
}

// InfluxConfig holds the optional InfluxDB sink settings.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Enabled reports whether the sink is configured.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// TenantOverrides are the per-tenant deviations from engine defaults.
type TenantOverrides struct {
	// EnabledStrategies restricts the catalog for this tenant. Empty
	// means all registered strategies.
	EnabledStrategies []string `yaml:"enabled_strategies"`

	// SufficiencyThreshold overrides the engine threshold when > 0.
	SufficiencyThreshold float64 `yaml:"sufficiency_threshold" validate:"gte=0,lte=1"`

	// StrategyWeights override individual strategy priority weights.
	StrategyWeights map[string]float64 `yaml:"strategy_weights"`
}

// TenantConfig is the resolved, immutable per-tenant view the engine
// receives at session start.
type TenantConfig struct {
	TenantID             string
	EnabledStrategies    []string
	SufficiencyThreshold float64
	StrategyWeights      map[string]float64
}

// Engine tuning defaults. The blended-score weights and sufficiency
// threshold are product tunables, not structural constants; deployments
// override them in YAML.
const (
	DefaultSufficiencyThreshold = 0.15
	DefaultMaxEvidence          = 40
	DefaultRelevanceWeight      = 0.7
	DefaultPriorityWeight       = 0.3
)

// EnsureDefaults fills unset engine fields.
func (c *EngineConfig) EnsureDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = datatypes.DefaultMaxIterations
	}
	if c.WallBudget == 0 {
		c.WallBudget = Duration(datatypes.DefaultWallBudget)
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = Duration(datatypes.DefaultCallTimeout)
	}
	if c.Concurrency == 0 {
		c.Concurrency = datatypes.DefaultConcurrency
	}
	if c.SufficiencyThreshold == 0 {
		c.SufficiencyThreshold = DefaultSufficiencyThreshold
	}
	if c.MaxEvidence == 0 {
		c.MaxEvidence = DefaultMaxEvidence
	}
	if c.RelevanceWeight == 0 && c.PriorityWeight == 0 {
		c.RelevanceWeight = DefaultRelevanceWeight
		c.PriorityWeight = DefaultPriorityWeight
	}
	if c.StrategyWeights == nil {
		c.StrategyWeights = map[string]float64{}
	}
}

// Load reads configuration from the given YAML path, applies environment
// overrides, fills defaults and validates the result.
//
// # Inputs
//
//   - path: YAML file path. Empty path skips the file and builds the
//     config from defaults plus environment only.
//
// # Outputs
//
//   - *Config: Validated configuration.
//   - error: Non-nil on unreadable file, bad YAML or validation failure.
//
// # Environment Overrides
//
//   - CONCIERGE_PORT, WEAVIATE_HOST, WEAVIATE_SCHEME,
//     CONCIERGE_MODEL, OPENAI_BASE_URL, TELEMETRY_BADGER_PATH,
//     INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONCIERGE_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("WEAVIATE_HOST"); v != "" {
		cfg.Weaviate.Host = v
	}
	if v := os.Getenv("WEAVIATE_SCHEME"); v != "" {
		cfg.Weaviate.Scheme = v
	}
	if v := os.Getenv("CONCIERGE_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("TELEMETRY_BADGER_PATH"); v != "" {
		cfg.Telemetry.BadgerPath = v
	}
	if v := os.Getenv("INFLUXDB_URL"); v != "" {
		cfg.Telemetry.Influx.URL = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.Telemetry.Influx.Token = v
	}
	if v := os.Getenv("INFLUXDB_ORG"); v != "" {
		cfg.Telemetry.Influx.Org = v
	}
	if v := os.Getenv("INFLUXDB_BUCKET"); v != "" {
		cfg.Telemetry.Influx.Bucket = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "12310"
	}
	if cfg.Weaviate.Host == "" {
		cfg.Weaviate.Host = "localhost:8080"
	}
	if cfg.Weaviate.Scheme == "" {
		cfg.Weaviate.Scheme = "http"
	}
	if cfg.Weaviate.Class == "" {
		cfg.Weaviate.Class = "TenantContent"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
		slog.Warn("CONCIERGE_MODEL not set, defaulting to gpt-4o-mini")
	}
	cfg.Engine.EnsureDefaults()
	if cfg.Rates == nil {
		cfg.Rates = map[string]datatypes.ModelRate{}
	}
}

// Tenant resolves the immutable per-tenant configuration for a session.
//
// Unknown tenants receive the engine defaults with no strategy
// restriction; restricting unknown tenants is an authorization concern
// that lives outside this core.
func (c *Config) Tenant(tenantID string) TenantConfig {
	tc := TenantConfig{
		TenantID:             tenantID,
		SufficiencyThreshold: c.Engine.SufficiencyThreshold,
		StrategyWeights:      make(map[string]float64, len(c.Engine.StrategyWeights)),
	}
	for k, v := range c.Engine.StrategyWeights {
		tc.StrategyWeights[k] = v
	}

	overrides, ok := c.Tenants[tenantID]
	if !ok {
		return tc
	}

	if len(overrides.EnabledStrategies) > 0 {
		tc.EnabledStrategies = append([]string(nil), overrides.EnabledStrategies...)
	}
	if overrides.SufficiencyThreshold > 0 {
		tc.SufficiencyThreshold = overrides.SufficiencyThreshold
	}
	for k, v := range overrides.StrategyWeights {
		tc.StrategyWeights[k] = v
	}
	return tc
}

// StrategyEnabled reports whether a strategy is enabled for this tenant.
func (t TenantConfig) StrategyEnabled(name string) bool {
	if len(t.EnabledStrategies) == 0 {
		return true
	}
	for _, s := range t.EnabledStrategies {
		if s == name {
			return true
		}
	}
	return false
}
