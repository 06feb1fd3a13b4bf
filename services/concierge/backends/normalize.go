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

// bm25HalfScore is the BM25 score that maps to 0.5 after normalization.
// BM25 scores are unbounded, so they pass through score/(score+k),
// a bounded monotonic transform. k was picked against the corpus used
// in the retrieval evaluation set; it is a tunable, not a truth.
const bm25HalfScore = 2.0

// normalizeCertainty clamps a Weaviate certainty into [0,1].
// Certainty is already (1+cosine)/2, so this only guards against
// float drift at the boundaries.
func normalizeCertainty(certainty float64) float64 {
	if certainty < 0 {
		return 0
	}
	if certainty > 1 {
		return 1
	}
	return certainty
}

// normalizeBM25 maps an unbounded non-negative BM25 score into [0,1).
func normalizeBM25(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + bm25HalfScore)
}
