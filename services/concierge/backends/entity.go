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
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

// Scores for entity-detail lookups. Exact matches carry a fixed high
// score: a where-filter has no native relevance signal, and an exact
// entity hit is the strongest evidence retrieval can produce.
const (
	entityExactScore   = 0.95
	entityPartialScore = 0.75
)

// EntityLookupBackend is the entity-detail strategy: exact (then
// prefix) lookup of a named entity such as a product, plan or policy.
type EntityLookupBackend struct {
	corpus   *Corpus
	tenantID string
	strategy string
}

// NewEntityLookupBackend creates the entity strategy for one tenant.
func NewEntityLookupBackend(corpus *Corpus, tenantID string) *EntityLookupBackend {
	return &EntityLookupBackend{
		corpus:   corpus,
		tenantID: tenantID,
		strategy: "lookup_entity",
	}
}

// Search implements SearchBackend. The "entity" parameter is required
// by the catalog schema; "limit" is optional.
//
// The lookup tries an exact entity_name match first and falls back to
// a prefix match. A deadline hit after the exact phase returns the
// exact hits with Truncated set rather than nothing.
func (b *EntityLookupBackend) Search(ctx context.Context, query string, params map[string]any) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "EntityLookupBackend.Search")
	defer span.End()

	limit := limitFromParams(params)
	entity := stringParam(params, "entity")
	span.SetAttributes(spanAttrs(b.strategy, b.tenantID, limit)...)
	span.SetAttributes(attribute.String("entity", entity))

	exact, err := b.lookup(ctx, entity, filters.Equal, limit)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{}
	now := time.Now().UTC()
	for _, hit := range exact {
		result.Items = append(result.Items, b.evidence(hit, entityExactScore, now))
	}

	if len(result.Items) < limit {
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < truncationGrace {
			result.Truncated = len(result.Items) > 0
			span.SetAttributes(attribute.Bool("truncated", result.Truncated))
			return result, nil
		}

		partial, err := b.lookup(ctx, entity+"*", filters.Like, limit-len(result.Items))
		if err != nil {
			// The exact phase already produced usable evidence.
			if len(result.Items) > 0 {
				result.Truncated = true
				span.SetAttributes(attribute.Bool("truncated", true))
				return result, nil
			}
			return nil, err
		}
		seen := make(map[string]bool, len(result.Items))
		for _, item := range result.Items {
			seen[item.SourceID] = true
		}
		for _, hit := range partial {
			if seen[hit.SourceID] {
				continue
			}
			result.Items = append(result.Items, b.evidence(hit, entityPartialScore, now))
		}
	}

	span.SetAttributes(attribute.Int("hits", len(result.Items)))
	return result, nil
}

func (b *EntityLookupBackend) lookup(ctx context.Context, value string, op filters.WhereOperator, limit int) ([]evidenceItem, error) {
	entityFilter := filters.Where().
		WithPath([]string{"entity_name"}).
		WithOperator(op).
		WithValueString(value)
	where := andFilters(tenantFilter(b.tenantID), entityFilter)

	resp, err := b.corpus.client.GraphQL().Get().
		WithClassName(b.corpus.class).
		WithFields(contentFields(graphql.Field{Name: "id"})...).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate entity lookup failed: %w", err)
	}
	return parseHits(resp, b.corpus.class, func(map[string]any) float64 { return 0 })
}

func (b *EntityLookupBackend) evidence(hit evidenceItem, score float64, now time.Time) datatypes.Evidence {
	title := hit.Title
	if title == "" {
		title = strings.TrimSpace(hit.SourceID)
	}
	return datatypes.Evidence{
		SourceID:    hit.SourceID,
		Title:       title,
		Snippet:     hit.Snippet,
		Score:       score,
		Strategy:    b.strategy,
		RetrievedAt: now,
	}
}
