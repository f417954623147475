// Package vectorstore holds per-workspace embeddings and answers brute-force
// cosine nearest-neighbor queries. There is no approximate index: every query
// scans every vector of the workspace.
package vectorstore

import (
	"context"
	"math"
)

// DefaultPageSize is the number of rows read per page from the database.
const DefaultPageSize = 1000

// Record is one chunk's embedding.
type Record struct {
	ChunkID    string
	URI        string
	Ordinal    int // position of the chunk within its file
	Embedding  []float32
	LanguageID string
	ChunkHash  string
	Model      string
}

// Hit is one nearest-neighbor result.
type Hit struct {
	ChunkID    string
	URI        string
	Score      float64
	LanguageID string
	ChunkHash  string
}

// Index is the contract shared by the local store and remote backends.
// All vectors compared in one Nearest call must come from the same model.
type Index interface {
	Store(ctx context.Context, records []*Record) error
	RemoveForURI(ctx context.Context, uri string) error
	Nearest(ctx context.Context, query []float32, k, offset int) ([]*Hit, error)
	ByHash(ctx context.Context, chunkHash string) ([]*Record, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns dot(a, b) / (na * nb). A zero denominator is replaced by 1,
// so zero vectors score 0. Vectors of different lengths score 0.
func Cosine(a, b []float32, na, nb float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	denom := na * nb
	if denom == 0 {
		denom = 1
	}
	return dot / denom
}
