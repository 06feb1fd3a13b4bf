// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("aleutian.concierge.backends")

// truncationGrace is how much deadline headroom a backend keeps. When
// less than this remains between pages, the backend stops fetching and
// returns what it has with Truncated set.
const truncationGrace = 500 * time.Millisecond

// Corpus is the shared view of the tenant content class in Weaviate.
// It is read-only and safe to share across concurrent sessions.
type Corpus struct {
	client *weaviate.Client
	class  string
}

// NewCorpus creates a corpus view over the given class.
func NewCorpus(client *weaviate.Client, class string) *Corpus {
	return &Corpus{client: client, class: class}
}

// contentFields are the properties every strategy retrieves.
func contentFields(additional ...graphql.Field) []graphql.Field {
	return []graphql.Field{
		{Name: "content_id"},
		{Name: "title"},
		{Name: "body"},
		{Name: "category"},
		{Name: "entity_name"},
		{Name: "_additional", Fields: additional},
	}
}

// tenantFilter scopes a query to one tenant's content.
func tenantFilter(tenantID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"tenant_id"}).
		WithOperator(filters.Equal).
		WithValueString(tenantID)
}

// andFilters combines where-clauses with AND, flattening the single case.
func andFilters(clauses ...*filters.WhereBuilder) *filters.WhereBuilder {
	if len(clauses) == 1 {
		return clauses[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(clauses)
}

// pageQueryFn runs one page fetch and returns the parsed hits.
type pageQueryFn func(ctx context.Context, limit, offset int) ([]evidenceItem, error)

// collectPaged fetches up to limit hits in pages, stopping early with
// Truncated when the context deadline closes in. A page error after at
// least one successful page also truncates instead of failing: partial
// evidence beats no evidence for grounding purposes.
func collectPaged(ctx context.Context, limit int, fetch pageQueryFn) ([]evidenceItem, bool, error) {
	var hits []evidenceItem

	for offset := 0; offset < limit; offset += pageSize {
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < truncationGrace {
			slog.Debug("Backend deadline closing in, truncating", "collected", len(hits))
			return hits, true, nil
		}

		pageLimit := pageSize
		if remaining := limit - offset; remaining < pageLimit {
			pageLimit = remaining
		}

		page, err := fetch(ctx, pageLimit, offset)
		if err != nil {
			if len(hits) > 0 {
				slog.Warn("Backend page fetch failed after partial results, truncating",
					"collected", len(hits), "error", err)
				return hits, true, nil
			}
			return nil, false, err
		}

		hits = append(hits, page...)
		if len(page) < pageLimit {
			break
		}
	}
	return hits, false, nil
}

// evidenceItem is an intermediate parsed hit before Evidence assembly.
type evidenceItem struct {
	SourceID string
	Title    string
	Snippet  string
	Score    float64
}

// parseHits extracts hits from a GraphQL response for the given class.
// scoreOf maps the _additional payload to a normalized [0,1] score.
func parseHits(resp *models.GraphQLResponse, class string, scoreOf func(map[string]any) float64) ([]evidenceItem, error) {
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", resp.Errors[0].Message)
	}

	get, ok := resp.Data["Get"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("malformed response: missing Get")
	}
	rows, ok := get[class].([]any)
	if !ok {
		// No results for the class comes back as nil.
		return nil, nil
	}

	items := make([]evidenceItem, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		item := evidenceItem{
			SourceID: stringField(obj, "content_id"),
			Title:    stringField(obj, "title"),
			Snippet:  stringField(obj, "body"),
		}
		if item.SourceID == "" {
			// Without a stable identity the aggregator cannot dedupe;
			// drop the row rather than fabricate one.
			continue
		}
		if additional, ok := obj["_additional"].(map[string]any); ok {
			item.Score = scoreOf(additional)
		}
		items = append(items, item)
	}
	return items, nil
}

func stringField(obj map[string]any, name string) string {
	if v, ok := obj[name].(string); ok {
		return v
	}
	return ""
}

// certaintyScore reads _additional.certainty.
func certaintyScore(additional map[string]any) float64 {
	switch v := additional["certainty"].(type) {
	case float64:
		return normalizeCertainty(v)
	case json.Number:
		f, _ := v.Float64()
		return normalizeCertainty(f)
	}
	return 0
}

// bm25Score reads _additional.score, which Weaviate returns as a string.
func bm25Score(additional map[string]any) float64 {
	switch v := additional["score"].(type) {
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return normalizeBM25(f)
		}
	case float64:
		return normalizeBM25(v)
	case json.Number:
		f, _ := v.Float64()
		return normalizeBM25(f)
	}
	return 0
}

// spanAttrs are the common span attributes for backend searches.
func spanAttrs(strategy, tenantID string, limit int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("strategy", strategy),
		attribute.String("tenant_id", tenantID),
		attribute.Int("limit", limit),
	}
}
