package index

import (
	"sync"
	"time"
)

// State is a workspace's position in the indexing lifecycle.
type State string

const (
	// StateUninitialized means nothing has been indexed.
	StateUninitialized State = "uninitialized"
	// StateIndexing means a build or refresh is running.
	StateIndexing State = "indexing"
	// StateReady means the index reflects the workspace.
	StateReady State = "ready"
	// StateStale means file changes are waiting to be indexed.
	StateStale State = "stale"
	// StateDegraded means the index is queryable but partial: some files or
	// embeddings failed, a fallback model is in use, or storage is read-only.
	StateDegraded State = "degraded"
	// StateError means the index is unusable.
	StateError State = "error"
)

// Queryable reports whether searches can return results in this state.
func (s State) Queryable() bool {
	switch s {
	case StateReady, StateStale, StateDegraded, StateIndexing:
		return true
	default:
		return false
	}
}

// IndexStatus is a point-in-time copy of one workspace's status.
type IndexStatus struct {
	Workspace       string    `json:"workspace"`
	State           State     `json:"state"`
	Paused          bool      `json:"paused"`
	TotalFiles      int       `json:"total_files"`
	IndexedFiles    int       `json:"indexed_files"`
	FailedFiles     int       `json:"failed_files"`
	TotalChunks     int       `json:"total_chunks"`
	EmbeddedChunks  int       `json:"embedded_chunks"`
	EmbeddingModel  string    `json:"embedding_model,omitempty"`
	Dimension       int       `json:"dimension,omitempty"`
	LastIndexedTime time.Time `json:"last_indexed_time,omitzero"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Incomplete      bool      `json:"incomplete"`
	PendingChanges  int       `json:"pending_changes"`
}

// ProgressPct returns the share of files processed, 0 to 100.
func (s IndexStatus) ProgressPct() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.IndexedFiles+s.FailedFiles) / float64(s.TotalFiles) * 100
}

// tracker provides thread-safe tracking of one workspace's status. Only the
// orchestrator writes to it; readers get copies.
type tracker struct {
	mu sync.RWMutex
	st IndexStatus

	// partial is set when any file or embedding failed in the current run.
	partial bool
}

func newTracker(workspace string) *tracker {
	return &tracker{st: IndexStatus{Workspace: workspace, State: StateUninitialized}}
}

// Snapshot returns a copy of the current status.
func (t *tracker) Snapshot() IndexStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.st
}

// begin starts a full build: counters reset, state indexing.
func (t *tracker) begin() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.State = StateIndexing
	t.st.TotalFiles = 0
	t.st.IndexedFiles = 0
	t.st.FailedFiles = 0
	t.st.TotalChunks = 0
	t.st.EmbeddedChunks = 0
	t.st.ErrorMessage = ""
	t.st.Incomplete = false
	t.partial = false
}

// beginRefresh starts an incremental run and keeps the counters.
func (t *tracker) beginRefresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.st.State = StateIndexing
	t.st.FailedFiles = 0
	t.st.ErrorMessage = ""
	t.st.Incomplete = false
	t.partial = false
}

func (t *tracker) setTotalFiles(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.TotalFiles = n
}

// fileDone counts one processed file.
func (t *tracker) fileDone(chunks, embedded int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.IndexedFiles++
	t.st.TotalChunks += chunks
	t.st.EmbeddedChunks += embedded
}

// fileFailed counts a file that could not be indexed and keeps the message.
func (t *tracker) fileFailed(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.FailedFiles++
	t.st.ErrorMessage = msg
	t.partial = true
}

// warn records a failure that left the file indexed, such as missing
// embeddings.
func (t *tracker) warn(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.ErrorMessage = msg
	t.partial = true
}

// outcome returns the status and whether the current run had failures.
func (t *tracker) outcome() (IndexStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.st, t.partial
}

// setCounts replaces the counters with totals read back from the stores.
func (t *tracker) setCounts(files, chunks, embedded int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.TotalFiles = files
	t.st.IndexedFiles = files
	t.st.TotalChunks = chunks
	t.st.EmbeddedChunks = embedded
}

func (t *tracker) setEmbedding(model string, dim int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.EmbeddingModel = model
	t.st.Dimension = dim
}

// pinEmbedding fixes the workspace's embedding model on first use and
// returns the pinned model and dimension.
func (t *tracker) pinEmbedding(model string, dim int) (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.EmbeddingModel == "" {
		t.st.EmbeddingModel = model
		t.st.Dimension = dim
	}
	return t.st.EmbeddingModel, t.st.Dimension
}

func (t *tracker) setPaused(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.Paused = paused
}

func (t *tracker) setPending(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.PendingChanges = n
}

// markStale flags pending changes on a queryable index.
func (t *tracker) markStale() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.State == StateReady {
		t.st.State = StateStale
	}
}

// markDegraded keeps the index queryable but records why it is partial.
func (t *tracker) markDegraded(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.State == StateUninitialized || t.st.State == StateError {
		return
	}
	if t.st.State != StateIndexing {
		t.st.State = StateDegraded
	}
	t.st.ErrorMessage = msg
}

// finish records the outcome of a build or refresh.
func (t *tracker) finish(state State, msg string, incomplete bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.State = state
	t.st.ErrorMessage = msg
	t.st.Incomplete = incomplete
	if !at.IsZero() {
		t.st.LastIndexedTime = at
	}
}

// reset returns the status to uninitialized, keeping only the pause flag.
func (t *tracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st = IndexStatus{Workspace: t.st.Workspace, State: StateUninitialized, Paused: t.st.Paused}
}
