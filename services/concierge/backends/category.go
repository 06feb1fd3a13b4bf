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

// CategorySearchBackend is the faceted strategy: BM25 over the corpus,
// restricted to a planner-named category (e.g. "shipping", "returns").
//
// BM25 scores are unbounded, so they pass through normalizeBM25 before
// becoming evidence scores.
type CategorySearchBackend struct {
	corpus   *Corpus
	tenantID string
	strategy string
}

// NewCategorySearchBackend creates the category strategy for one tenant.
func NewCategorySearchBackend(corpus *Corpus, tenantID string) *CategorySearchBackend {
	return &CategorySearchBackend{
		corpus:   corpus,
		tenantID: tenantID,
		strategy: "search_category",
	}
}

// Search implements SearchBackend. The "category" parameter is
// required by the catalog schema.
func (b *CategorySearchBackend) Search(ctx context.Context, query string, params map[string]any) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "CategorySearchBackend.Search")
	defer span.End()

	limit := limitFromParams(params)
	category := stringParam(params, "category")
	span.SetAttributes(spanAttrs(b.strategy, b.tenantID, limit)...)
	span.SetAttributes(attribute.String("category", category))

	categoryFilter := filters.Where().
		WithPath([]string{"category"}).
		WithOperator(filters.Equal).
		WithValueString(category)
	where := andFilters(tenantFilter(b.tenantID), categoryFilter)

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
			return nil, fmt.Errorf("weaviate category search failed: %w", err)
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
