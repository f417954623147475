// Package lexical implements the per-workspace BM25 keyword index. Postings
// live in memory and are mirrored to the workspace database so a restart does
// not re-read unchanged files.
package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/Aman-CERP/amanidx/internal/chunk"
	"github.com/Aman-CERP/amanidx/internal/store"
)

// BM25 parameters.
const (
	K1 = 1.5
	B  = 0.75
)

// SnippetLength is the maximum snippet length in characters.
const SnippetLength = 500

// Hit is one ranked keyword match.
type Hit struct {
	ChunkID    string
	URI        string
	Score      float64
	Snippet    string
	Range      *chunk.Range
	LanguageID string
}

// Stats summarizes the in-memory index.
type Stats struct {
	Documents      int
	Chunks         int
	Terms          int
	AvgChunkLength float64
}

type posting struct {
	tf        int
	positions []int
}

type entry struct {
	id         string
	uri        string
	languageID string
	content    string
	rng        *chunk.Range
	length     int
	terms      []string
}

// Store is a BM25 index over chunks. Reads and writes are safe for
// concurrent use; replacing one document's chunks is atomic to readers.
type Store struct {
	mu       sync.RWMutex
	postings map[string]map[string]*posting // term -> chunk id -> posting
	chunks   map[string]*entry
	docs     map[string][]string // uri -> chunk ids
	totalLen int

	// persistMu orders writes to the database the same way as memory.
	persistMu sync.Mutex
	db        *store.DB
	degraded  atomic.Bool
	logger    *slog.Logger
}

// New creates an empty Store. A nil db keeps the index in memory only.
func New(db *store.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		postings: make(map[string]map[string]*posting),
		chunks:   make(map[string]*entry),
		docs:     make(map[string][]string),
		db:       db,
		logger:   logger,
	}
}

// Open creates a Store and rebuilds its postings from the chunks persisted in db.
func Open(ctx context.Context, db *store.DB, logger *slog.Logger) (*Store, error) {
	s := New(db, logger)
	if db == nil {
		return s, nil
	}

	loaded := 0
	err := db.EachChunk(ctx, func(row store.ChunkRow) error {
		e := &entry{
			id:         row.ID,
			uri:        row.URI,
			languageID: row.LanguageID,
			content:    row.Content,
			rng: &chunk.Range{
				StartLine:   row.StartLine,
				StartColumn: row.StartColumn,
				EndLine:     row.EndLine,
				EndColumn:   row.EndColumn,
			},
		}
		s.insertLocked(e, analyze(row.Content))
		s.docs[row.URI] = append(s.docs[row.URI], row.ID)
		loaded++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load lexical index: %w", err)
	}

	s.logger.Debug("lexical_index_loaded",
		slog.Int("documents", len(s.docs)),
		slog.Int("chunks", loaded))
	return s, nil
}

// IndexDocument replaces every chunk of uri with chunks. Re-indexing the same
// chunks leaves scores unchanged.
func (s *Store) IndexDocument(ctx context.Context, uri, languageID string, chunks []*chunk.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db != nil && s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	entries := make([]*entry, 0, len(chunks))
	stats := make([]termStats, 0, len(chunks))
	for _, c := range chunks {
		lang := c.LanguageID
		if lang == "" {
			lang = languageID
		}
		entries = append(entries, &entry{
			id:         c.ID,
			uri:        uri,
			languageID: lang,
			content:    c.Content,
			rng:        c.Range,
		})
		stats = append(stats, analyze(c.Content))
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.removeLocked(uri)
	ids := make([]string, 0, len(entries))
	for i, e := range entries {
		s.insertLocked(e, stats[i])
		ids = append(ids, e.id)
	}
	if len(ids) > 0 {
		s.docs[uri] = ids
	}
	s.mu.Unlock()

	s.persist(ctx, "index_document", uri, func() error {
		return s.db.ReplaceDocument(ctx, documentRow(uri, languageID, chunks), chunkRows(uri, languageID, chunks))
	})
	return nil
}

// RemoveDocument drops every chunk of uri. Unknown uris are ignored.
func (s *Store) RemoveDocument(ctx context.Context, uri string) error {
	if s.db != nil && s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.removeLocked(uri)
	s.mu.Unlock()

	s.persist(ctx, "remove_document", uri, func() error {
		return s.db.DeleteDocument(ctx, uri)
	})
	return nil
}

// Clear drops every document.
func (s *Store) Clear(ctx context.Context) error {
	if s.db != nil && s.db.ReadOnly() {
		return store.ErrReadOnly
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.postings = make(map[string]map[string]*posting)
	s.chunks = make(map[string]*entry)
	s.docs = make(map[string][]string)
	s.totalLen = 0
	s.mu.Unlock()

	s.persist(ctx, "clear", "", func() error {
		return s.db.ClearDocuments(ctx)
	})
	return nil
}

// persist runs a database write. Failures are logged and mark the store
// degraded; the in-memory index stays authoritative.
func (s *Store) persist(ctx context.Context, op, uri string, fn func() error) {
	if s.db == nil {
		return
	}
	if err := fn(); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.degraded.Store(true)
		s.logger.Warn("lexical_persist_failed",
			slog.String("op", op),
			slog.String("uri", uri),
			slog.String("error", err.Error()))
	}
}

// Degraded reports whether a persistence write has failed since Open.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

func (s *Store) insertLocked(e *entry, ts termStats) {
	if _, exists := s.chunks[e.id]; exists {
		s.removeChunkLocked(e.id)
	}
	e.length = ts.length
	e.terms = make([]string, 0, len(ts.tf))
	s.chunks[e.id] = e
	s.totalLen += ts.length
	for term, tf := range ts.tf {
		m := s.postings[term]
		if m == nil {
			m = make(map[string]*posting)
			s.postings[term] = m
		}
		m[e.id] = &posting{tf: tf, positions: ts.positions[term]}
		e.terms = append(e.terms, term)
	}
}

func (s *Store) removeLocked(uri string) {
	for _, id := range s.docs[uri] {
		s.removeChunkLocked(id)
	}
	delete(s.docs, uri)
}

func (s *Store) removeChunkLocked(id string) {
	e, ok := s.chunks[id]
	if !ok {
		return
	}
	for _, term := range e.terms {
		if m := s.postings[term]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(s.postings, term)
			}
		}
	}
	s.totalLen -= e.length
	delete(s.chunks, id)
}

// Search ranks chunks against query with BM25. Results are ordered by
// descending score, then ascending chunk id. maxResults <= 0 returns every hit.
func (s *Store) Search(ctx context.Context, query string, maxResults int) ([]*Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terms := Tokenize(query)
	if len(terms) == 0 {
		return []*Hit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.chunks)
	if n == 0 {
		return []*Hit{}, nil
	}
	avgLen := float64(s.totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		m := s.postings[term]
		if len(m) == 0 {
			continue
		}
		df := float64(len(m))
		idf := math.Log((float64(n)-df+0.5)/(df+0.5) + 1)
		for id, p := range m {
			tf := float64(p.tf)
			docLen := float64(s.chunks[id].length)
			scores[id] += idf * (tf * (K1 + 1)) / (tf + K1*(1-B+B*(docLen/avgLen)))
		}
	}

	hits := make([]*Hit, 0, len(scores))
	for id, score := range scores {
		e := s.chunks[id]
		hits = append(hits, &Hit{
			ChunkID:    id,
			URI:        e.uri,
			Score:      score,
			Snippet:    snippet(e.content),
			Range:      e.rng,
			LanguageID: e.languageID,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if maxResults > 0 && len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

// Stats returns corpus statistics.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Documents: len(s.docs),
		Chunks:    len(s.chunks),
		Terms:     len(s.postings),
	}
	if st.Chunks > 0 {
		st.AvgChunkLength = float64(s.totalLen) / float64(st.Chunks)
	}
	return st
}

// HasDocument reports whether uri has at least one indexed chunk.
func (s *Store) HasDocument(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[uri]) > 0
}

// Describe returns chunk id as a zero-score hit, for callers that ranked it
// elsewhere.
func (s *Store) Describe(id string) (*Hit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.chunks[id]
	if !ok {
		return nil, false
	}
	return &Hit{
		ChunkID:    e.id,
		URI:        e.uri,
		Snippet:    snippet(e.content),
		Range:      e.rng,
		LanguageID: e.languageID,
	}, true
}

// URIs returns the indexed document uris, sorted.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// Close releases in-memory state. The database is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postings = make(map[string]map[string]*posting)
	s.chunks = make(map[string]*entry)
	s.docs = make(map[string][]string)
	s.totalLen = 0
	return nil
}

func snippet(content string) string {
	if utf8.RuneCountInString(content) <= SnippetLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:SnippetLength])
}

func documentRow(uri, languageID string, chunks []*chunk.Chunk) store.DocumentRow {
	hashes := make([]byte, 0, len(chunks)*64)
	for _, c := range chunks {
		hashes = append(hashes, c.ContentHash...)
	}
	return store.DocumentRow{
		URI:         uri,
		ContentHash: chunk.HashContent(string(hashes)),
		LanguageID:  languageID,
	}
}

func chunkRows(uri, languageID string, chunks []*chunk.Chunk) []store.ChunkRow {
	rows := make([]store.ChunkRow, 0, len(chunks))
	for i, c := range chunks {
		lang := c.LanguageID
		if lang == "" {
			lang = languageID
		}
		row := store.ChunkRow{
			ID:          c.ID,
			URI:         uri,
			Ordinal:     i,
			Content:     c.Content,
			ContentHash: c.ContentHash,
			LanguageID:  lang,
		}
		if c.Range != nil {
			row.StartLine = c.Range.StartLine
			row.StartColumn = c.Range.StartColumn
			row.EndLine = c.Range.EndLine
			row.EndColumn = c.Range.EndColumn
		}
		rows = append(rows, row)
	}
	return rows
}
