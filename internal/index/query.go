package index

import (
	"context"
	"fmt"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// SearchLexical implements Service. A workspace with no index returns no
// hits.
func (o *Orchestrator) SearchLexical(ctx context.Context, root, query string, maxResults int) ([]*Hit, error) {
	ws, err := o.workspace(root)
	if err != nil {
		return nil, err
	}
	if ok, err := o.open(ctx, ws, false); err != nil || !ok {
		return []*Hit{}, err
	}
	lex, _, _ := ws.stores()
	if lex == nil {
		return []*Hit{}, nil
	}

	found, err := lex.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	hits := make([]*Hit, len(found))
	for i, h := range found {
		hits[i] = &Hit{
			ChunkID:    h.ChunkID,
			URI:        h.URI,
			Score:      h.Score,
			Snippet:    h.Snippet,
			Range:      h.Range,
			LanguageID: h.LanguageID,
		}
	}
	return hits, nil
}

// SearchVector implements Service. A query embedded by a different model
// than the index marks the workspace degraded and returns
// ERR_402_DIMENSION_MISMATCH, so the caller can fall back to lexical hits.
func (o *Orchestrator) SearchVector(ctx context.Context, root string, query []float32, model string, k int) ([]*Hit, error) {
	ws, err := o.workspace(root)
	if err != nil {
		return nil, err
	}
	if ok, err := o.open(ctx, ws, false); err != nil || !ok {
		return []*Hit{}, err
	}
	lex, vec, _ := ws.stores()
	if vec == nil {
		return []*Hit{}, nil
	}

	st := ws.status.Snapshot()
	if st.EmbeddingModel == "" {
		return []*Hit{}, nil
	}
	if model != st.EmbeddingModel || len(query) != st.Dimension {
		msg := fmt.Sprintf("query model %s (%d dims) does not match index model %s (%d dims)",
			model, len(query), st.EmbeddingModel, st.Dimension)
		ws.status.markDegraded(msg)
		return nil, amerrors.New(amerrors.ErrCodeDimensionMismatch, msg, nil).
			WithDetail("index_model", st.EmbeddingModel).
			WithDetail("query_model", model).
			WithSuggestion("Run 'amanidx rebuild' to re-embed the workspace with the current model")
	}

	found, err := vec.Nearest(ctx, query, k, 0)
	if err != nil {
		return nil, err
	}
	hits := make([]*Hit, 0, len(found))
	for _, h := range found {
		hit := &Hit{ChunkID: h.ChunkID, URI: h.URI, Score: h.Score, LanguageID: h.LanguageID}
		if d, ok := lex.Describe(h.ChunkID); ok {
			hit.Snippet = d.Snippet
			hit.Range = d.Range
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
