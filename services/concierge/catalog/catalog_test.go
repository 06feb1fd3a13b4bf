// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianSupport/services/concierge/backends"
	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// stubBackend records invocations and returns canned evidence.
type stubBackend struct {
	calls  int
	params map[string]any
	items  []datatypes.Evidence
	err    error
}

func (s *stubBackend) Search(ctx context.Context, query string, params map[string]any) (*backends.SearchResult, error) {
	s.calls++
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return &backends.SearchResult{Items: s.items}, nil
}

func contentSchema() ParamSchema {
	return ParamSchema{
		"limit":    {Type: TypeInt, Description: "max results"},
		"category": {Type: TypeString, Description: "content category", Required: true,
			Enum: []string{"shipping", "returns", "product"}},
	}
}

func TestCatalog_Describe(t *testing.T) {
	c := New()
	c.Register("search_content", "semantic content search", ParamSchema{}, &stubBackend{})
	c.Register("lookup_entity", "exact entity lookup", ParamSchema{}, &stubBackend{})

	specs := c.Describe()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	// Sorted by name for deterministic planner prompts.
	if specs[0].Name != "lookup_entity" || specs[1].Name != "search_content" {
		t.Errorf("unexpected order: %s, %s", specs[0].Name, specs[1].Name)
	}
}

func TestCatalog_Invoke(t *testing.T) {
	backend := &stubBackend{items: []datatypes.Evidence{{SourceID: "doc-1", Score: 0.8}}}
	c := New()
	c.Register("search_category", "faceted search", contentSchema(), backend)

	t.Run("valid parameters dispatch", func(t *testing.T) {
		result, err := c.Invoke(context.Background(), "search_category", "shipping time",
			map[string]any{"category": "shipping", "limit": 5.0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Items) != 1 || result.Items[0].SourceID != "doc-1" {
			t.Errorf("unexpected result %+v", result)
		}
		if backend.calls != 1 {
			t.Errorf("expected 1 backend call, got %d", backend.calls)
		}
	})

	t.Run("unknown strategy fails closed", func(t *testing.T) {
		_, err := c.Invoke(context.Background(), "search_nothing", "q", nil)
		if !errors.Is(err, ErrUnknownStrategy) {
			t.Errorf("expected ErrUnknownStrategy, got %v", err)
		}
	})

	t.Run("missing required parameter", func(t *testing.T) {
		_, err := c.Invoke(context.Background(), "search_category", "q", map[string]any{"limit": 5.0})
		if !errors.Is(err, ErrInvalidParameters) {
			t.Errorf("expected ErrInvalidParameters, got %v", err)
		}
	})

	t.Run("enum violation", func(t *testing.T) {
		_, err := c.Invoke(context.Background(), "search_category", "q",
			map[string]any{"category": "weather"})
		if !errors.Is(err, ErrInvalidParameters) {
			t.Errorf("expected ErrInvalidParameters, got %v", err)
		}
	})

	t.Run("unknown parameter rejected", func(t *testing.T) {
		_, err := c.Invoke(context.Background(), "search_category", "q",
			map[string]any{"category": "shipping", "colour": "blue"})
		if !errors.Is(err, ErrInvalidParameters) {
			t.Errorf("expected ErrInvalidParameters, got %v", err)
		}
	})

	t.Run("backend errors pass through", func(t *testing.T) {
		boom := errors.New("backend down")
		c.Register("search_broken", "always fails", ParamSchema{}, &stubBackend{err: boom})

		_, err := c.Invoke(context.Background(), "search_broken", "q", map[string]any{})
		if !errors.Is(err, boom) {
			t.Errorf("expected backend error, got %v", err)
		}
	})
}

func TestCatalog_Restrict(t *testing.T) {
	c := New()
	c.Register("search_content", "", ParamSchema{}, &stubBackend{})
	c.Register("search_products", "", ParamSchema{}, &stubBackend{})
	c.Register("lookup_entity", "", ParamSchema{}, &stubBackend{})

	t.Run("restricts to named strategies", func(t *testing.T) {
		view := c.Restrict([]string{"search_content", "lookup_entity", "not_registered"})
		if view.Count() != 2 {
			t.Errorf("expected 2 strategies, got %d", view.Count())
		}
		if _, err := view.Invoke(context.Background(), "search_products", "q", nil); !errors.Is(err, ErrUnknownStrategy) {
			t.Error("restricted view should not expose search_products")
		}
	})

	t.Run("empty restriction returns full catalog", func(t *testing.T) {
		if view := c.Restrict(nil); view.Count() != 3 {
			t.Errorf("expected full catalog, got %d", view.Count())
		}
	})

	t.Run("parent unaffected", func(t *testing.T) {
		_ = c.Restrict([]string{"search_content"})
		if c.Count() != 3 {
			t.Errorf("parent catalog mutated, count %d", c.Count())
		}
	})
}

func TestParamSchema_Validate(t *testing.T) {
	schema := ParamSchema{
		"query":    {Type: TypeString, Required: true},
		"limit":    {Type: TypeInt},
		"score":    {Type: TypeNumber},
		"verbose":  {Type: TypeBool},
		"features": {Type: TypeString},
	}

	t.Run("integer rejects fractional float", func(t *testing.T) {
		err := schema.Validate(map[string]any{"query": "q", "limit": 2.5})
		if err == nil {
			t.Error("expected error for fractional integer")
		}
	})

	t.Run("integer accepts whole float", func(t *testing.T) {
		if err := schema.Validate(map[string]any{"query": "q", "limit": 3.0}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("bool type enforced", func(t *testing.T) {
		if err := schema.Validate(map[string]any{"query": "q", "verbose": "yes"}); err == nil {
			t.Error("expected error for string in bool slot")
		}
	})

	t.Run("nil optional allowed", func(t *testing.T) {
		if err := schema.Validate(map[string]any{"query": "q", "score": nil}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestParamSchema_JSONSchema(t *testing.T) {
	schema := ParamSchema{
		"category": {Type: TypeString, Required: true, Description: "content category",
			Enum: []string{"shipping", "returns"}},
		"limit":    {Type: TypeInt, Description: "max results"},
		"features": {Type: TypeStringList, Description: "feature filters"},
	}

	rendered := schema.JSONSchema()
	if rendered["type"] != "object" {
		t.Fatalf("expected object schema, got %v", rendered["type"])
	}

	props, ok := rendered["properties"].(map[string]any)
	if !ok {
		t.Fatal("properties missing")
	}
	category, _ := props["category"].(map[string]any)
	if category["type"] != "string" {
		t.Errorf("category type = %v", category["type"])
	}
	if enum, _ := category["enum"].([]string); len(enum) != 2 {
		t.Errorf("category enum = %v", category["enum"])
	}
	features, _ := props["features"].(map[string]any)
	if features["type"] != "array" {
		t.Errorf("features type = %v", features["type"])
	}
	if items, _ := features["items"].(map[string]any); items["type"] != "string" {
		t.Errorf("features items = %v", features["items"])
	}

	required, _ := rendered["required"].([]string)
	if len(required) != 1 || required[0] != "category" {
		t.Errorf("required = %v", required)
	}
}

func TestParamSchema_ValidateStringList(t *testing.T) {
	schema := ParamSchema{"features": {Type: TypeStringList}}

	if err := schema.Validate(map[string]any{"features": []any{"blue", "waterproof"}}); err != nil {
		t.Errorf("unexpected error for string list: %v", err)
	}
	if err := schema.Validate(map[string]any{"features": []any{"blue", 7}}); err == nil {
		t.Error("expected error for mixed-type list")
	}
	if err := schema.Validate(map[string]any{"features": "blue"}); err == nil {
		t.Error("expected error for bare string in list slot")
	}
}
