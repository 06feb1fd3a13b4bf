// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package backends implements the retrieval strategies that feed the
// grounding engine: vector content search, category/faceted search,
// entity-detail lookup and feature-based product search.
//
// All strategies run against the tenant content corpus in Weaviate
// ("TenantContent" class by default), which the scraping/storage layer
// populates. Each backend normalizes its native score (certainty, BM25)
// to [0,1] before returning Evidence; scores are ordinally comparable
// across backends but not numerically, which is why the aggregator
// blends them with strategy priority weights instead of re-normalizing.
package backends

import (
	"context"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// SearchResult is the uniform response of every retrieval strategy.
type SearchResult struct {
	// Items is the retrieved evidence, scores normalized to [0,1].
	Items []datatypes.Evidence

	// Truncated is set when the backend hit its internal deadline and
	// returned partial results instead of discarding everything.
	Truncated bool
}

// SearchBackend is the uniform contract of a retrieval strategy.
//
// Implementations must respect the caller-supplied deadline on ctx and
// prefer partial results with Truncated set over returning nothing when
// the deadline closes in mid-retrieval.
type SearchBackend interface {
	Search(ctx context.Context, query string, params map[string]any) (*SearchResult, error)
}

// Default retrieval limits.
const (
	// DefaultLimit is the per-call evidence cap when the planner does
	// not specify one.
	DefaultLimit = 10

	// MaxLimit bounds planner-proposed limits.
	MaxLimit = 50

	// pageSize is the Weaviate fetch page. Paging lets a backend stop
	// between pages when the deadline closes in and return what it has.
	pageSize = 5
)

// limitFromParams extracts and clamps the "limit" parameter.
func limitFromParams(params map[string]any) int {
	raw, ok := params["limit"]
	if !ok {
		return DefaultLimit
	}
	f, ok := raw.(float64)
	if !ok {
		if i, isInt := raw.(int); isInt {
			f = float64(i)
		} else {
			return DefaultLimit
		}
	}
	limit := int(f)
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// stringParam extracts an optional string parameter.
func stringParam(params map[string]any, name string) string {
	if v, ok := params[name].(string); ok {
		return v
	}
	return ""
}

// stringSliceParam extracts an optional list-of-strings parameter.
// JSON arrays arrive as []any.
func stringSliceParam(params map[string]any, name string) []string {
	raw, ok := params[name]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
