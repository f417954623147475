package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/store"
)

type vector struct {
	rec  *Record
	norm float64
}

// Store is the local, in-process embedding store.
type Store struct {
	mu     sync.RWMutex
	byID   map[string]*vector
	byURI  map[string]map[string]struct{}
	byHash map[string]map[string]struct{}
	dim    int

	persistMu sync.Mutex
	db        *store.DB
	pageSize  int
	degraded  atomic.Bool
	logger    *slog.Logger
}

var _ Index = (*Store)(nil)

// Options configures a Store.
type Options struct {
	// PageSize bounds rows read per database page (default: DefaultPageSize).
	PageSize int
}

// New creates an empty Store. A nil db keeps vectors in memory only.
func New(db *store.DB, opts Options, logger *slog.Logger) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		byID:     make(map[string]*vector),
		byURI:    make(map[string]map[string]struct{}),
		byHash:   make(map[string]map[string]struct{}),
		db:       db,
		pageSize: opts.PageSize,
		logger:   logger,
	}
}

// Open creates a Store and loads every persisted vector, one page at a time.
func Open(ctx context.Context, db *store.DB, opts Options, logger *slog.Logger) (*Store, error) {
	s := New(db, opts, logger)
	if db == nil {
		return s, nil
	}

	after := ""
	for {
		page, err := db.VectorPage(ctx, after, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to load vectors: %w", err)
		}
		if len(page) == 0 {
			break
		}
		s.mu.Lock()
		for _, row := range page {
			if s.dim == 0 {
				s.dim = row.Dimension
			}
			s.insertLocked(&Record{
				ChunkID:    row.ChunkID,
				URI:        row.URI,
				Embedding:  row.Vector,
				LanguageID: row.LanguageID,
				ChunkHash:  row.ChunkHash,
				Model:      row.Model,
			}, row.Norm)
		}
		s.mu.Unlock()
		after = page[len(page)-1].ChunkID
	}

	s.logger.Debug("vector_store_loaded",
		slog.Int("vectors", len(s.byID)),
		slog.Int("dimension", s.dim))
	return s, nil
}

// Store inserts or replaces records. Every record must share the store's
// dimension; the first stored record fixes it.
func (s *Store) Store(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db != nil && s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	rows := make([]store.VectorRow, 0, len(records))

	s.mu.Lock()
	dim := s.dim
	if dim == 0 {
		dim = len(records[0].Embedding)
	}
	for _, r := range records {
		if len(r.Embedding) != dim {
			s.mu.Unlock()
			return dimensionMismatch(dim, len(r.Embedding)).WithDetail("chunk_id", r.ChunkID)
		}
	}
	s.dim = dim
	for _, r := range records {
		cp := *r
		cp.Embedding = append([]float32(nil), r.Embedding...)
		norm := Norm(cp.Embedding)
		s.insertLocked(&cp, norm)
		rows = append(rows, store.VectorRow{
			ChunkID:    cp.ChunkID,
			URI:        cp.URI,
			Model:      cp.Model,
			Dimension:  dim,
			Norm:       norm,
			ChunkHash:  cp.ChunkHash,
			LanguageID: cp.LanguageID,
			Vector:     cp.Embedding,
		})
	}
	s.mu.Unlock()

	s.persist(ctx, "store", func() error { return s.db.UpsertVectors(ctx, rows) })
	return nil
}

func (s *Store) insertLocked(r *Record, norm float64) {
	if old, ok := s.byID[r.ChunkID]; ok {
		s.removeLocked(old.rec)
	}
	s.byID[r.ChunkID] = &vector{rec: r, norm: norm}
	addTo(s.byURI, r.URI, r.ChunkID)
	if r.ChunkHash != "" {
		addTo(s.byHash, r.ChunkHash, r.ChunkID)
	}
}

func (s *Store) removeLocked(r *Record) {
	delete(s.byID, r.ChunkID)
	removeFrom(s.byURI, r.URI, r.ChunkID)
	removeFrom(s.byHash, r.ChunkHash, r.ChunkID)
}

// RemoveForURI drops every record owned by uri.
func (s *Store) RemoveForURI(ctx context.Context, uri string) error {
	if s.db != nil && s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	for id := range s.byURI[uri] {
		if v, ok := s.byID[id]; ok {
			s.removeLocked(v.rec)
		}
	}
	if len(s.byID) == 0 {
		s.dim = 0
	}
	s.mu.Unlock()

	s.persist(ctx, "remove_for_uri", func() error { return s.db.DeleteVectorsForURI(ctx, uri) })
	return nil
}

// Clear drops every record.
func (s *Store) Clear(ctx context.Context) error {
	if s.db != nil && s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.byID = make(map[string]*vector)
	s.byURI = make(map[string]map[string]struct{})
	s.byHash = make(map[string]map[string]struct{})
	s.dim = 0
	s.mu.Unlock()

	s.persist(ctx, "clear", func() error { return s.db.ClearVectors(ctx) })
	return nil
}

// Nearest returns hits [offset, offset+k) ordered by descending cosine
// similarity, then ascending chunk id.
func (s *Store) Nearest(ctx context.Context, query []float32, k, offset int) ([]*Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []*Hit{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.byID) == 0 {
		return []*Hit{}, nil
	}
	if len(query) != s.dim {
		return nil, dimensionMismatch(s.dim, len(query))
	}

	qn := Norm(query)
	hits := make([]*Hit, 0, len(s.byID))
	for _, v := range s.byID {
		hits = append(hits, &Hit{
			ChunkID:    v.rec.ChunkID,
			URI:        v.rec.URI,
			Score:      Cosine(query, v.rec.Embedding, qn, v.norm),
			LanguageID: v.rec.LanguageID,
			ChunkHash:  v.rec.ChunkHash,
		})
	}
	sort.Slice(hits, func(i, j int) bool { return less(hits[j], hits[i]) })

	return window(hits, k, offset), nil
}

// ByHash returns copies of every record whose chunk hash matches.
func (s *Store) ByHash(ctx context.Context, chunkHash string) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.byHash[chunkHash]))
	for id := range s.byHash[chunkHash] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		cp := *s.byID[id].rec
		cp.Embedding = append([]float32(nil), cp.Embedding...)
		out = append(out, &cp)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count(context.Context) (int, error) {
	return s.Len(), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Dimension returns the vector length in use, or 0 when empty.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Degraded reports whether a persistence write has failed.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

// Close releases in-memory state. The database is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*vector)
	s.byURI = make(map[string]map[string]struct{})
	s.byHash = make(map[string]map[string]struct{})
	return nil
}

func (s *Store) persist(ctx context.Context, op string, fn func() error) {
	if s.db == nil {
		return
	}
	if err := fn(); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.degraded.Store(true)
		s.logger.Warn("vector_persist_failed",
			slog.String("op", op),
			slog.String("error", err.Error()))
	}
}

// less orders a before b when a ranks lower.
func less(a, b *Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.ChunkID > b.ChunkID
}

func window(hits []*Hit, k, offset int) []*Hit {
	if offset >= len(hits) {
		return []*Hit{}
	}
	end := offset + k
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}

func dimensionMismatch(want, got int) *amerrors.IndexError {
	return amerrors.New(amerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", want, got), nil).
		WithDetail("expected", strconv.Itoa(want)).
		WithDetail("got", strconv.Itoa(got))
}

func addTo(m map[string]map[string]struct{}, key, id string) {
	set := m[key]
	if set == nil {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom(m map[string]map[string]struct{}, key, id string) {
	if set := m[key]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(m, key)
		}
	}
}

// minHeap keeps the lowest-ranked hit at the root.
type minHeap []*Hit

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(*Hit)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
