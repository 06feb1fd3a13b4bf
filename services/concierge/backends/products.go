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
	"fmt"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// ProductSearchBackend is the feature-based product strategy: BM25 over
// product content, optionally narrowed by planner-extracted feature
// terms ("blue", "waterproof", "size 11") via a features filter.
//
// Commerce tenants register this strategy; content-only tenants simply
// leave it out of their catalog.
type ProductSearchBackend struct {
	corpus   *Corpus
	tenantID string
	strategy string
}

// NewProductSearchBackend creates the product strategy for one tenant.
func NewProductSearchBackend(corpus *Corpus, tenantID string) *ProductSearchBackend {
	return &ProductSearchBackend{
		corpus:   corpus,
		tenantID: tenantID,
		strategy: "search_products",
	}
}

// Search implements SearchBackend. Optional params: "features" (list
// of feature terms), "limit".
func (b *ProductSearchBackend) Search(ctx context.Context, query string, params map[string]any) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "ProductSearchBackend.Search")
	defer span.End()

	limit := limitFromParams(params)
	features := stringSliceParam(params, "features")
	span.SetAttributes(spanAttrs(b.strategy, b.tenantID, limit)...)
	span.SetAttributes(attribute.Int("features", len(features)))

	clauses := []*filters.WhereBuilder{
		tenantFilter(b.tenantID),
		filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueString("product"),
	}
	if len(features) > 0 {
		clauses = append(clauses, filters.Where().
			WithPath([]string{"features"}).
			WithOperator(filters.ContainsAny).
			WithValueString(features...))
	}
	where := andFilters(clauses...)

	hits, truncated, err := collectPaged(ctx, limit, func(ctx context.Context, pageLimit, offset int) ([]evidenceItem, error) {
		bm25 := b.corpus.client.GraphQL().Bm25ArgBuilder().
			WithQuery(query).
			WithProperties("title", "body")

		resp, err := b.corpus.client.GraphQL().Get().
			WithClassName(b.corpus.class).
			WithFields(contentFields(graphql.Field{Name: "score"})...).
			WithWhere(where).
			WithBM25(bm25).
			WithLimit(pageLimit).
			WithOffset(offset).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("weaviate product search failed: %w", err)
		}
		return parseHits(resp, b.corpus.class, bm25Score)
	})
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Truncated: truncated}
	now := time.Now().UTC()
	for _, hit := range hits {
		result.Items = append(result.Items, datatypes.Evidence{
			SourceID:    hit.SourceID,
			Title:       hit.Title,
			Snippet:     hit.Snippet,
			Score:       hit.Score,
			Strategy:    b.strategy,
			RetrievedAt: now,
		})
	}

	span.SetAttributes(
		attribute.Int("hits", len(result.Items)),
		attribute.Bool("truncated", result.Truncated),
	)
	return result, nil
}
