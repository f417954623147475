// Package search answers hybrid queries over an indexed workspace. Lexical
// (BM25) and vector (cosine) hits are merged into one ranked list, with each
// result tagged by the sub-index that produced it.
package search

import (
	"time"

	"github.com/Aman-CERP/amanidx/internal/chunk"
	"github.com/Aman-CERP/amanidx/internal/index"
)

// Provenance tags.
const (
	ProvenanceLexical = "lexical"
	ProvenanceVector  = "vector"
)

// Options configures one query.
type Options struct {
	Workspace string

	// MaxResults caps the merged list. Zero uses search.max_results from the
	// configuration; a negative value returns everything.
	MaxResults int

	// Lexical adds BM25 hits to the vector hits.
	Lexical bool

	// LexicalOnly skips the query embedding and vector search.
	LexicalOnly bool
}

// Recency tells the caller how fresh the answer is.
type Recency struct {
	State           index.State `json:"state"`
	LastIndexedTime time.Time   `json:"last_indexed_time,omitzero"`
	PendingChanges  int         `json:"pending_changes"`
	Incomplete      bool        `json:"incomplete"`
}

// Result is one merged hit.
type Result struct {
	ChunkID    string       `json:"chunk_id"`
	URI        string       `json:"uri"`
	Score      float64      `json:"score"`
	Snippet    string       `json:"snippet"`
	Range      *chunk.Range `json:"range,omitempty"`
	LanguageID string       `json:"language_id,omitempty"`
	Provenance []string     `json:"provenance"`

	// Raw sub-scores before normalization, zero when absent.
	LexicalScore float64 `json:"lexical_score,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
}

// Response is the answer to a query. Results is never nil.
type Response struct {
	Recency Recency   `json:"recency"`
	Results []*Result `json:"results"`
}

func emptyResponse(st index.IndexStatus) *Response {
	return &Response{Recency: recencyOf(st), Results: []*Result{}}
}

func recencyOf(st index.IndexStatus) Recency {
	return Recency{
		State:           st.State,
		LastIndexedTime: st.LastIndexedTime,
		PendingChanges:  st.PendingChanges,
		Incomplete:      st.Incomplete,
	}
}
