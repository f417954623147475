package search

import (
	"sort"

	"github.com/Aman-CERP/amanidx/internal/index"
)

// merge de-duplicates lexical and vector hits by chunk id and unions their
// provenance. Lexical scores are divided by the best lexical score; cosine
// scores are already bounded and only clamped to [0, 1]. A result's score is
// the larger of its normalized sub-scores.
//
// Results are sorted by score (desc) then chunk id (asc).
func merge(lexical, vector []*index.Hit) []*Result {
	if len(lexical) == 0 && len(vector) == 0 {
		return []*Result{}
	}

	byID := make(map[string]*Result, len(lexical)+len(vector))
	order := make([]*Result, 0, len(lexical)+len(vector))
	get := func(h *index.Hit) *Result {
		if r, ok := byID[h.ChunkID]; ok {
			return r
		}
		r := &Result{ChunkID: h.ChunkID, URI: h.URI, LanguageID: h.LanguageID}
		byID[h.ChunkID] = r
		order = append(order, r)
		return r
	}

	maxLex := 0.0
	for _, h := range lexical {
		maxLex = max(maxLex, h.Score)
	}

	for _, h := range lexical {
		r := get(h)
		r.Provenance = append(r.Provenance, ProvenanceLexical)
		r.LexicalScore = h.Score
		if maxLex > 0 {
			r.Score = max(r.Score, h.Score/maxLex)
		}
		fill(r, h)
	}
	for _, h := range vector {
		r := get(h)
		r.Provenance = append(r.Provenance, ProvenanceVector)
		r.VectorScore = h.Score
		r.Score = max(r.Score, clamp01(h.Score))
		fill(r, h)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].Score != order[j].Score {
			return order[i].Score > order[j].Score
		}
		return order[i].ChunkID < order[j].ChunkID
	})
	return order
}

// fill copies display fields the result does not have yet.
func fill(r *Result, h *index.Hit) {
	if r.Snippet == "" {
		r.Snippet = h.Snippet
	}
	if r.Range == nil {
		r.Range = h.Range
	}
	if r.LanguageID == "" {
		r.LanguageID = h.LanguageID
	}
}

func clamp01(x float64) float64 {
	return min(max(x, 0), 1)
}
