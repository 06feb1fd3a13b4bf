// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package aggregate

import (
	"context"
	"testing"

	"github.com/AleutianAI/AleutianSupport/services/concierge/datatypes"
)

func ev(id, strategy string, score float64) datatypes.Evidence {
	return datatypes.Evidence{
		SourceID: id,
		Title:    "title-" + id,
		Snippet:  "snippet-" + id,
		Score:    score,
		Strategy: strategy,
	}
}

func TestMerge_DedupKeepsHighestScore(t *testing.T) {
	agg := New(Config{})
	input := []datatypes.Evidence{
		ev("doc-1", "search_content", 0.40),
		ev("doc-1", "search_products", 0.90),
		ev("doc-1", "search_category", 0.60),
		ev("doc-2", "search_content", 0.50),
	}

	gc := agg.Merge(context.Background(), "sess_a", input, 0.15)
	if len(gc.Evidence) != 2 {
		t.Fatalf("expected 2 deduped items, got %d", len(gc.Evidence))
	}
	if gc.Evidence[0].SourceID != "doc-1" || gc.Evidence[0].Score != 0.90 {
		t.Errorf("expected doc-1 at score 0.90 first, got %s/%v",
			gc.Evidence[0].SourceID, gc.Evidence[0].Score)
	}
	if gc.Evidence[0].Strategy != "search_products" {
		t.Errorf("dedup kept wrong occurrence: strategy %s", gc.Evidence[0].Strategy)
	}
}

func TestMerge_OrderIsDeterministic(t *testing.T) {
	agg := New(Config{StrategyWeights: map[string]float64{
		"lookup_entity":  1.0,
		"search_content": 0.5,
	}})
	input := []datatypes.Evidence{
		ev("b", "search_content", 0.70),
		ev("a", "search_content", 0.70),
		ev("c", "lookup_entity", 0.40),
		ev("d", "search_content", 0.95),
	}

	first := agg.Merge(context.Background(), "sess_a", input, 0.15)
	for i := 0; i < 20; i++ {
		again := agg.Merge(context.Background(), "sess_a", input, 0.15)
		if len(again.Evidence) != len(first.Evidence) {
			t.Fatalf("run %d: length changed", i)
		}
		for j := range first.Evidence {
			if again.Evidence[j].SourceID != first.Evidence[j].SourceID {
				t.Fatalf("run %d: order changed at %d: %s vs %s",
					i, j, again.Evidence[j].SourceID, first.Evidence[j].SourceID)
			}
		}
	}
}

func TestMerge_BlendedRanking(t *testing.T) {
	// lookup_entity weighted 1.0, search_content 0.2.
	// blended(entity 0.75)  = 0.7*0.75 + 0.3*1.0 = 0.825
	// blended(content 0.90) = 0.7*0.90 + 0.3*0.2 = 0.690
	agg := New(Config{StrategyWeights: map[string]float64{
		"lookup_entity":  1.0,
		"search_content": 0.2,
	}})
	input := []datatypes.Evidence{
		ev("content-hit", "search_content", 0.90),
		ev("entity-hit", "lookup_entity", 0.75),
	}

	gc := agg.Merge(context.Background(), "sess_a", input, 0.15)
	if gc.Evidence[0].SourceID != "entity-hit" {
		t.Errorf("expected weighted entity hit first, got %s", gc.Evidence[0].SourceID)
	}
	// TopScore reports raw relevance, not the blended value.
	if gc.TopScore != 0.90 {
		t.Errorf("expected top raw score 0.90, got %v", gc.TopScore)
	}
}

func TestMerge_TieBreaks(t *testing.T) {
	agg := New(Config{StrategyWeights: map[string]float64{
		"search_products": 0.0,
		"search_content":  0.0,
	}})

	t.Run("equal blended falls back to source id", func(t *testing.T) {
		input := []datatypes.Evidence{
			ev("zzz", "search_content", 0.50),
			ev("aaa", "search_products", 0.50),
		}
		gc := agg.Merge(context.Background(), "sess_a", input, 0.15)
		if gc.Evidence[0].SourceID != "aaa" {
			t.Errorf("expected aaa first on id tie-break, got %s", gc.Evidence[0].SourceID)
		}
	})

	t.Run("strategy weight breaks blended tie first", func(t *testing.T) {
		// 0.5/0.5 blend with mirrored score/weight pairs so both items
		// land on exactly 0.375 in float arithmetic:
		//   entity:  0.5*0.25 + 0.5*0.50 = 0.375
		//   content: 0.5*0.50 + 0.5*0.25 = 0.375
		weighted := New(Config{
			RelevanceWeight: 0.5,
			PriorityWeight:  0.5,
			StrategyWeights: map[string]float64{
				"lookup_entity":  0.50,
				"search_content": 0.25,
			},
		})
		input := []datatypes.Evidence{
			ev("zz-entity", "lookup_entity", 0.25),
			ev("aa-content", "search_content", 0.50),
		}
		gc := weighted.Merge(context.Background(), "sess_a", input, 0.15)
		if gc.Evidence[0].SourceID != "zz-entity" {
			t.Errorf("expected higher strategy weight first, got %s", gc.Evidence[0].SourceID)
		}
	})
}

func TestMerge_CapsAtMaxEvidence(t *testing.T) {
	agg := New(Config{MaxEvidence: 3})
	var input []datatypes.Evidence
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		input = append(input, ev(id, "search_content", 0.5))
	}

	gc := agg.Merge(context.Background(), "sess_a", input, 0.15)
	if len(gc.Evidence) != 3 {
		t.Fatalf("expected cap at 3, got %d", len(gc.Evidence))
	}
	if !gc.Sufficient {
		t.Error("capped result above threshold should still be sufficient")
	}
}

func TestMerge_Sufficiency(t *testing.T) {
	agg := New(Config{})

	t.Run("empty input", func(t *testing.T) {
		gc := agg.Merge(context.Background(), "sess_a", nil, 0.15)
		if gc.Sufficient {
			t.Error("empty evidence must not be sufficient")
		}
		if gc.Reason != datatypes.ReasonNoRelevantEvidence {
			t.Errorf("expected reason %q, got %q", datatypes.ReasonNoRelevantEvidence, gc.Reason)
		}
	})

	t.Run("all below threshold", func(t *testing.T) {
		input := []datatypes.Evidence{
			ev("a", "search_content", 0.05),
			ev("b", "search_content", 0.10),
		}
		gc := agg.Merge(context.Background(), "sess_a", input, 0.15)
		if gc.Sufficient {
			t.Error("low-confidence evidence must not be sufficient")
		}
		if gc.Reason != datatypes.ReasonLowConfidence {
			t.Errorf("expected reason %q, got %q", datatypes.ReasonLowConfidence, gc.Reason)
		}
		// Evidence is still carried so the planner can see what was found.
		if len(gc.Evidence) != 2 {
			t.Errorf("expected evidence retained, got %d items", len(gc.Evidence))
		}
	})

	t.Run("one strong hit suffices", func(t *testing.T) {
		input := []datatypes.Evidence{
			ev("cable-spec", "search_products", 0.80),
			ev("noise", "search_content", 0.05),
		}
		gc := agg.Merge(context.Background(), "sess_a", input, 0.15)
		if !gc.Sufficient {
			t.Error("expected sufficiency with a 0.80 hit at 0.15 threshold")
		}
		if gc.Reason != datatypes.ReasonNone {
			t.Errorf("sufficient context must carry no reason, got %q", gc.Reason)
		}
		if gc.Evidence[0].SourceID != "cable-spec" {
			t.Errorf("expected strongest hit first, got %s", gc.Evidence[0].SourceID)
		}
	})

	t.Run("exactly at threshold", func(t *testing.T) {
		input := []datatypes.Evidence{ev("a", "search_content", 0.15)}
		gc := agg.Merge(context.Background(), "sess_a", input, 0.15)
		if !gc.Sufficient {
			t.Error("score equal to threshold should be sufficient")
		}
	})
}

func TestMerge_SkipsEmptySourceID(t *testing.T) {
	agg := New(Config{})
	input := []datatypes.Evidence{
		ev("", "search_content", 0.9),
		ev("real", "search_content", 0.5),
	}
	gc := agg.Merge(context.Background(), "sess_a", input, 0.15)
	if len(gc.Evidence) != 1 || gc.Evidence[0].SourceID != "real" {
		t.Fatalf("expected only the identified item, got %+v", gc.Evidence)
	}
}
