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
	"errors"
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

func TestNormalizeCertainty(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"in range", 0.83, 0.83},
		{"below zero clamps", -0.1, 0},
		{"above one clamps", 1.2, 1},
		{"zero", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeCertainty(tc.in); got != tc.want {
				t.Errorf("normalizeCertainty(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeBM25(t *testing.T) {
	t.Run("zero and negative map to zero", func(t *testing.T) {
		if normalizeBM25(0) != 0 || normalizeBM25(-3) != 0 {
			t.Error("non-positive scores must normalize to 0")
		}
	})

	t.Run("bounded below one", func(t *testing.T) {
		if got := normalizeBM25(1000); got >= 1 {
			t.Errorf("expected score < 1, got %v", got)
		}
	})

	t.Run("monotonic", func(t *testing.T) {
		if normalizeBM25(1) >= normalizeBM25(4) {
			t.Error("expected higher BM25 to normalize higher")
		}
	})

	t.Run("half score at k", func(t *testing.T) {
		if got := normalizeBM25(bm25HalfScore); got != 0.5 {
			t.Errorf("expected 0.5 at k, got %v", got)
		}
	})
}

func TestLimitFromParams(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
		want   int
	}{
		{"missing uses default", map[string]any{}, DefaultLimit},
		{"json float accepted", map[string]any{"limit": 7.0}, 7},
		{"int accepted", map[string]any{"limit": 3}, 3},
		{"zero uses default", map[string]any{"limit": 0.0}, DefaultLimit},
		{"negative uses default", map[string]any{"limit": -2.0}, DefaultLimit},
		{"clamped to max", map[string]any{"limit": 500.0}, MaxLimit},
		{"wrong type uses default", map[string]any{"limit": "ten"}, DefaultLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := limitFromParams(tc.params); got != tc.want {
				t.Errorf("limitFromParams = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestStringSliceParam(t *testing.T) {
	params := map[string]any{
		"features": []any{"blue", "waterproof", 42},
	}
	got := stringSliceParam(params, "features")
	if len(got) != 2 || got[0] != "blue" || got[1] != "waterproof" {
		t.Errorf("unexpected slice %v", got)
	}

	if stringSliceParam(map[string]any{}, "features") != nil {
		t.Error("missing param should return nil")
	}
}

func TestCollectPaged(t *testing.T) {
	makeHits := func(n int, prefix string) []evidenceItem {
		hits := make([]evidenceItem, n)
		for i := range hits {
			hits[i] = evidenceItem{SourceID: prefix + string(rune('a'+i))}
		}
		return hits
	}

	t.Run("collects across pages", func(t *testing.T) {
		var calls int
		hits, truncated, err := collectPaged(context.Background(), 12, func(ctx context.Context, limit, offset int) ([]evidenceItem, error) {
			calls++
			return makeHits(limit, "p"), nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if truncated {
			t.Error("expected no truncation")
		}
		if len(hits) != 12 {
			t.Errorf("expected 12 hits, got %d", len(hits))
		}
		if calls != 3 {
			t.Errorf("expected 3 page fetches, got %d", calls)
		}
	})

	t.Run("short page ends collection", func(t *testing.T) {
		hits, truncated, err := collectPaged(context.Background(), 20, func(ctx context.Context, limit, offset int) ([]evidenceItem, error) {
			if offset > 0 {
				t.Error("should not fetch past a short page")
			}
			return makeHits(2, "s"), nil
		})
		if err != nil || truncated {
			t.Fatalf("unexpected err=%v truncated=%v", err, truncated)
		}
		if len(hits) != 2 {
			t.Errorf("expected 2 hits, got %d", len(hits))
		}
	})

	t.Run("error after partial results truncates", func(t *testing.T) {
		var calls int
		hits, truncated, err := collectPaged(context.Background(), 10, func(ctx context.Context, limit, offset int) ([]evidenceItem, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("backend blew up")
			}
			return makeHits(limit, "e"), nil
		})
		if err != nil {
			t.Fatalf("partial results should not surface the error, got %v", err)
		}
		if !truncated {
			t.Error("expected truncation flag")
		}
		if len(hits) != pageSize {
			t.Errorf("expected %d hits, got %d", pageSize, len(hits))
		}
	})

	t.Run("error with no results surfaces", func(t *testing.T) {
		_, _, err := collectPaged(context.Background(), 10, func(ctx context.Context, limit, offset int) ([]evidenceItem, error) {
			return nil, errors.New("down")
		})
		if err == nil {
			t.Error("expected error when nothing was collected")
		}
	})

	t.Run("closing deadline truncates between pages", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), truncationGrace/2)
		defer cancel()

		hits, truncated, err := collectPaged(ctx, 20, func(ctx context.Context, limit, offset int) ([]evidenceItem, error) {
			t.Error("fetch should not run with the deadline inside the grace window")
			return nil, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !truncated {
			t.Error("expected truncation")
		}
		if len(hits) != 0 {
			t.Errorf("expected 0 hits, got %d", len(hits))
		}
	})
}

func TestParseHits(t *testing.T) {
	t.Run("parses rows with certainty", func(t *testing.T) {
		resp := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Get": map[string]any{
					"TenantContent": []any{
						map[string]any{
							"content_id": "doc-1",
							"title":      "Shipping policy",
							"body":       "We ship worldwide.",
							"_additional": map[string]any{
								"certainty": 0.91,
							},
						},
						map[string]any{
							// Missing content_id: dropped, not fabricated.
							"title": "orphan",
						},
					},
				},
			},
		}

		hits, err := parseHits(resp, "TenantContent", certaintyScore)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hits) != 1 {
			t.Fatalf("expected 1 hit, got %d", len(hits))
		}
		if hits[0].SourceID != "doc-1" || hits[0].Score != 0.91 {
			t.Errorf("unexpected hit %+v", hits[0])
		}
	})

	t.Run("graphql errors surface", func(t *testing.T) {
		resp := &models.GraphQLResponse{
			Errors: []*models.GraphQLError{{Message: "class not found"}},
		}
		if _, err := parseHits(resp, "TenantContent", certaintyScore); err == nil {
			t.Error("expected error from graphql errors")
		}
	})

	t.Run("empty class yields no hits", func(t *testing.T) {
		resp := &models.GraphQLResponse{
			Data: map[string]models.JSONObject{
				"Get": map[string]any{},
			},
		}
		hits, err := parseHits(resp, "TenantContent", certaintyScore)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("expected no hits, got %d", len(hits))
		}
	})
}

func TestBM25Score_StringPayload(t *testing.T) {
	// Weaviate returns BM25 scores as strings in _additional.
	got := bm25Score(map[string]any{"score": "2.0"})
	if got != 0.5 {
		t.Errorf("expected 0.5, got %v", got)
	}
}
