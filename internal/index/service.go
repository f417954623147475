// Package index owns the per-workspace indexing lifecycle. It drives files
// through the chunker into the lexical store and, via the embedding gateway,
// into the vector store, and it is the only writer of IndexStatus.
package index

import (
	"context"

	"github.com/Aman-CERP/amanidx/internal/chunk"
	"github.com/Aman-CERP/amanidx/internal/watcher"
)

// Service is the contract shared by the local and remote backends and by
// the Router that chooses between them. Workspaces are identified by their
// root path.
type Service interface {
	// BuildFullIndex discards the workspace's index and indexes every file.
	BuildFullIndex(ctx context.Context, workspace string) error
	// RefreshPaths re-indexes only the given workspace-relative or absolute
	// paths. Paths that no longer exist are removed from the index.
	RefreshPaths(ctx context.Context, workspace string, uris []string) error
	// Notify queues file events for a debounced RefreshPaths.
	Notify(workspace string, events []watcher.FileEvent)
	// Pause lets in-flight work finish and holds new work until Resume.
	Pause(workspace string)
	Resume(workspace string)
	// Rebuild is DeleteIndex followed by BuildFullIndex.
	Rebuild(ctx context.Context, workspace string) error
	// DeleteIndex removes every stored trace of the workspace.
	DeleteIndex(ctx context.Context, workspace string) error
	Status(workspace string) IndexStatus
	Diagnostics(ctx context.Context) Diagnostics

	SearchLexical(ctx context.Context, workspace, query string, maxResults int) ([]*Hit, error)
	// SearchVector ranks chunks by cosine similarity to query, which must
	// come from the model the workspace was indexed with.
	SearchVector(ctx context.Context, workspace string, query []float32, model string, k int) ([]*Hit, error)

	Close() error
}

// Hit is one chunk returned by a sub-index.
type Hit struct {
	ChunkID    string
	URI        string
	Score      float64
	Snippet    string
	Range      *chunk.Range
	LanguageID string
}

// Diagnostics holds aggregate counts only: no file contents, no vectors.
type Diagnostics struct {
	Backend           string                 `json:"backend"`
	Enabled           bool                   `json:"enabled"`
	EmbeddingModel    string                 `json:"embedding_model,omitempty"`
	EmbeddingDegraded bool                   `json:"embedding_degraded"`
	Workspaces        []WorkspaceDiagnostics `json:"workspaces"`
}

// WorkspaceDiagnostics summarizes one open workspace.
type WorkspaceDiagnostics struct {
	Workspace       string  `json:"workspace"`
	Hash            string  `json:"hash"`
	State           State   `json:"state"`
	Documents       int     `json:"documents"`
	Chunks          int     `json:"chunks"`
	Terms           int     `json:"terms"`
	AvgChunkLength  float64 `json:"avg_chunk_length"`
	Vectors         int     `json:"vectors"`
	Dimension       int     `json:"dimension"`
	ReadOnly        bool    `json:"read_only"`
	LexicalDegraded bool    `json:"lexical_degraded"`
	VectorDegraded  bool    `json:"vector_degraded"`
}

// Disabled is the Service used when indexing is switched off. Every
// operation succeeds without doing anything and status stays uninitialized.
type Disabled struct{}

var _ Service = Disabled{}

func (Disabled) BuildFullIndex(context.Context, string) error         { return nil }
func (Disabled) RefreshPaths(context.Context, string, []string) error { return nil }
func (Disabled) Notify(string, []watcher.FileEvent)                   {}
func (Disabled) Pause(string)                                         {}
func (Disabled) Resume(string)                                        {}
func (Disabled) Rebuild(context.Context, string) error                { return nil }
func (Disabled) DeleteIndex(context.Context, string) error            { return nil }
func (Disabled) Close() error                                         { return nil }

func (Disabled) Status(workspace string) IndexStatus {
	return IndexStatus{Workspace: workspace, State: StateUninitialized}
}

func (Disabled) Diagnostics(context.Context) Diagnostics {
	return Diagnostics{Backend: "disabled", Workspaces: []WorkspaceDiagnostics{}}
}

func (Disabled) SearchLexical(context.Context, string, string, int) ([]*Hit, error) {
	return []*Hit{}, nil
}

func (Disabled) SearchVector(context.Context, string, []float32, string, int) ([]*Hit, error) {
	return []*Hit{}, nil
}
