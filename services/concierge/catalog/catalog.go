// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog maps retrieval-strategy names to backend invocations.
//
// The catalog is constructed explicitly per deployment: there is no
// global strategy list, so tenants can enable or disable strategies
// (for example, disabling product search for non-commerce tenants) by
// building the catalog view they are entitled to. Dispatch is keyed by
// strategy name and fails closed: unknown names are ErrUnknownStrategy,
// parameters that do not satisfy the registered schema are
// ErrInvalidParameters.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianSupport/services/concierge/backends"
)

// Sentinel errors for the catalog.
var (
	// ErrUnknownStrategy indicates the strategy name is not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidParameters indicates the raw parameters failed schema
	// validation.
	ErrInvalidParameters = errors.New("invalid parameters")
)

// ToolSpec is the planner-facing description of one strategy.
type ToolSpec struct {
	// Name is the strategy name the planner must use.
	Name string `json:"name"`

	// Description tells the planner when to pick this strategy.
	Description string `json:"description"`

	// Schema is the parameter contract.
	Schema ParamSchema `json:"schema"`
}

// entry pairs a spec with its backend.
type entry struct {
	spec    ToolSpec
	backend backends.SearchBackend
}

// Catalog is the strategy registry for one deployment.
//
// # Thread Safety
//
// Catalog is safe for concurrent use. Registration normally happens at
// startup, but the lock keeps late registration safe too.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]entry)}
}

// Register adds a strategy under its name. Registering an existing name
// replaces the previous entry.
func (c *Catalog) Register(name, description string, schema ParamSchema, backend backends.SearchBackend) {
	if name == "" || backend == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = entry{
		spec: ToolSpec{
			Name:        name,
			Description: description,
			Schema:      schema,
		},
		backend: backend,
	}
}

// Describe returns the specs of every registered strategy, sorted by
// name for deterministic planner prompts.
func (c *Catalog) Describe() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(c.entries))
	for _, e := range c.entries {
		specs = append(specs, e.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Names returns the registered strategy names, sorted.
func (c *Catalog) Names() []string {
	specs := c.Describe()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Invoke validates rawParams against the registered schema and
// dispatches to the backend.
//
// # Errors
//
//   - ErrUnknownStrategy: name is not registered
//   - ErrInvalidParameters: rawParams fail the schema (wrapped with the
//     offending parameter)
//   - backend errors pass through unwrapped so callers can distinguish
//     timeouts from hard failures
func (c *Catalog) Invoke(ctx context.Context, name, query string, rawParams map[string]any) (*backends.SearchResult, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	if err := e.spec.Schema.Validate(rawParams); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return e.backend.Search(ctx, query, rawParams)
}

// Restrict returns a view of this catalog containing only the named
// strategies. Names not registered are ignored. An empty list returns
// the catalog unchanged (no restriction).
//
// The view shares backends with the parent but has its own entry map,
// so per-tenant restriction never mutates the shared deployment catalog.
func (c *Catalog) Restrict(names []string) *Catalog {
	if len(names) == 0 {
		return c
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	view := New()
	for _, name := range names {
		if e, ok := c.entries[name]; ok {
			view.entries[name] = e
		}
	}
	return view
}

// Count returns the number of registered strategies.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
