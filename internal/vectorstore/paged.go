package vectorstore

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/store"
)

// PagedStore is an Index that keeps no vectors in memory. Writes go straight
// to the workspace database and every Nearest call streams the vectors table
// one page at a time, holding at most offset+k candidates.
type PagedStore struct {
	db       *store.DB
	pageSize int
	logger   *slog.Logger

	mu  sync.Mutex
	dim int
}

var _ Index = (*PagedStore)(nil)

// OpenPaged creates a PagedStore over db. The stored dimension is read from
// the first persisted row.
func OpenPaged(ctx context.Context, db *store.DB, opts Options, logger *slog.Logger) (*PagedStore, error) {
	if db == nil {
		return nil, fmt.Errorf("paged vector store needs a database")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &PagedStore{db: db, pageSize: opts.PageSize, logger: logger}
	dim, err := s.storedDimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read vector dimension: %w", err)
	}
	s.dim = dim
	return s, nil
}

func (s *PagedStore) storedDimension(ctx context.Context) (int, error) {
	page, err := s.db.VectorPage(ctx, "", 1)
	if err != nil || len(page) == 0 {
		return 0, err
	}
	return page[0].Dimension, nil
}

// Store inserts or replaces records. The first stored record fixes the
// dimension.
func (s *PagedStore) Store(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(records[0].Embedding)
	}
	rows := make([]store.VectorRow, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) != dim {
			return dimensionMismatch(dim, len(r.Embedding)).WithDetail("chunk_id", r.ChunkID)
		}
		rows = append(rows, store.VectorRow{
			ChunkID:    r.ChunkID,
			URI:        r.URI,
			Model:      r.Model,
			Dimension:  dim,
			Norm:       Norm(r.Embedding),
			ChunkHash:  r.ChunkHash,
			LanguageID: r.LanguageID,
			Vector:     r.Embedding,
		})
	}
	if err := s.db.UpsertVectors(ctx, rows); err != nil {
		return amerrors.New(amerrors.ErrCodeIndexFailed, "failed to store vectors", err)
	}
	s.dim = dim
	return nil
}

// RemoveForURI drops every record owned by uri.
func (s *PagedStore) RemoveForURI(ctx context.Context, uri string) error {
	if s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteVectorsForURI(ctx, uri); err != nil {
		return fmt.Errorf("failed to remove vectors for %s: %w", uri, err)
	}
	dim, err := s.storedDimension(ctx)
	if err != nil {
		return err
	}
	s.dim = dim
	return nil
}

// Clear drops every record.
func (s *PagedStore) Clear(ctx context.Context) error {
	if s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ClearVectors(ctx); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	s.dim = 0
	return nil
}

// Nearest returns hits [offset, offset+k) ordered by descending cosine
// similarity, then ascending chunk id.
func (s *PagedStore) Nearest(ctx context.Context, query []float32, k, offset int) ([]*Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []*Hit{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	dim := s.Dimension()
	if dim == 0 {
		return []*Hit{}, nil
	}
	if len(query) != dim {
		return nil, dimensionMismatch(dim, len(query))
	}

	limit := offset + k
	qn := Norm(query)
	top := &minHeap{}
	after := ""
	pages := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.db.VectorPage(ctx, after, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read vector page: %w", err)
		}
		if len(page) == 0 {
			break
		}
		pages++
		for _, row := range page {
			if len(row.Vector) != len(query) {
				return nil, dimensionMismatch(len(row.Vector), len(query)).WithDetail("chunk_id", row.ChunkID)
			}
			h := &Hit{
				ChunkID:    row.ChunkID,
				URI:        row.URI,
				Score:      Cosine(query, row.Vector, qn, row.Norm),
				LanguageID: row.LanguageID,
				ChunkHash:  row.ChunkHash,
			}
			if top.Len() < limit {
				heap.Push(top, h)
			} else if less((*top)[0], h) {
				(*top)[0] = h
				heap.Fix(top, 0)
			}
		}
		after = page[len(page)-1].ChunkID
	}

	hits := make([]*Hit, top.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(top).(*Hit)
	}
	s.logger.Debug("vector_search_streamed", slog.Int("pages", pages), slog.Int("candidates", len(hits)))
	return window(hits, k, offset), nil
}

// ByHash returns every record whose chunk hash matches, ordered by chunk id.
func (s *PagedStore) ByHash(ctx context.Context, chunkHash string) ([]*Record, error) {
	rows, err := s.db.VectorsByHash(ctx, chunkHash)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, &Record{
			ChunkID:    row.ChunkID,
			URI:        row.URI,
			Embedding:  row.Vector,
			LanguageID: row.LanguageID,
			ChunkHash:  row.ChunkHash,
			Model:      row.Model,
		})
	}
	return out, nil
}

// Count returns the number of persisted records.
func (s *PagedStore) Count(ctx context.Context) (int, error) {
	counts, err := s.db.Counts(ctx)
	if err != nil {
		return 0, err
	}
	return counts.Vectors, nil
}

// Dimension returns the vector length in use, or 0 when empty.
func (s *PagedStore) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

// Close is a no-op. The database is owned by the caller.
func (s *PagedStore) Close() error {
	return nil
}
