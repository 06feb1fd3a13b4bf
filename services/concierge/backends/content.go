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

	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// ContentSearchBackend is the vector-similarity content strategy.
//
// It runs a nearText query against the tenant corpus and normalizes
// Weaviate certainty (already [0,1]) into the evidence score. The
// planner may pass "limit" and "min_score".
type ContentSearchBackend struct {
	corpus   *Corpus
	tenantID string
	strategy string
}

// NewContentSearchBackend creates the content strategy for one tenant.
func NewContentSearchBackend(corpus *Corpus, tenantID string) *ContentSearchBackend {
	return &ContentSearchBackend{
		corpus:   corpus,
		tenantID: tenantID,
		strategy: "search_content",
	}
}

// Search implements SearchBackend.
func (b *ContentSearchBackend) Search(ctx context.Context, query string, params map[string]any) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "ContentSearchBackend.Search")
	defer span.End()

	limit := limitFromParams(params)
	span.SetAttributes(spanAttrs(b.strategy, b.tenantID, limit)...)

	minScore := 0.0
	if f, ok := params["min_score"].(float64); ok && f > 0 {
		minScore = f
	}

	hits, truncated, err := collectPaged(ctx, limit, func(ctx context.Context, pageLimit, offset int) ([]evidenceItem, error) {
		nearText := b.corpus.client.GraphQL().NearTextArgBuilder().
			WithConcepts([]string{query})

		resp, err := b.corpus.client.GraphQL().Get().
			WithClassName(b.corpus.class).
			WithFields(contentFields(graphql.Field{Name: "certainty"})...).
			WithWhere(tenantFilter(b.tenantID)).
			WithNearText(nearText).
			WithLimit(pageLimit).
			WithOffset(offset).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("weaviate content search failed: %w", err)
		}
		return parseHits(resp, b.corpus.class, certaintyScore)
	})
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Truncated: truncated}
	now := time.Now().UTC()
	for _, hit := range hits {
		if hit.Score < minScore {
			continue
		}
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
