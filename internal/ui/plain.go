package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Aman-CERP/amanidx/internal/index"
)

// PlainRenderer writes one line per 10% of progress, for CI logs and pipes.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	lastStep int
	paused   bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, lastStep: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// Update implements Renderer.
func (r *PlainRenderer) Update(st index.IndexStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.Paused != r.paused {
		r.paused = st.Paused
		if st.Paused {
			_, _ = fmt.Fprintln(r.out, "[PAUSE] indexing paused")
		} else {
			_, _ = fmt.Fprintln(r.out, "[RESUME] indexing resumed")
		}
	}

	if st.TotalFiles == 0 {
		return
	}
	step := int(st.ProgressPct()) / 10
	if step == r.lastStep {
		return
	}
	r.lastStep = step

	done := st.IndexedFiles + st.FailedFiles
	_, _ = fmt.Fprintf(r.out, "[INDEX] %d/%d files (%.0f%%) %d chunks\n",
		done, st.TotalFiles, st.ProgressPct(), st.TotalChunks)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := s.Status
	label := "Complete"
	if st.Incomplete {
		label = "Cancelled"
	}
	_, _ = fmt.Fprintf(r.out, "%s: %s, %d files, %d chunks (%d embedded) in %s",
		label, st.State, st.IndexedFiles, st.TotalChunks, st.EmbeddedChunks, s.Duration.Round(100*time.Millisecond))
	if st.FailedFiles > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", st.FailedFiles)
	}
	_, _ = fmt.Fprintln(r.out)

	if st.ErrorMessage != "" {
		_, _ = fmt.Fprintf(r.out, "WARN: %s\n", st.ErrorMessage)
	}
	if s.Embedder.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Embeddings: %s (%d dims)", s.Embedder.Model, s.Embedder.Dimensions)
		if s.Embedder.Fallback {
			_, _ = fmt.Fprint(r.out, " [fallback]")
		}
		_, _ = fmt.Fprintln(r.out)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
