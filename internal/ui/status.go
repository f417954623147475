package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/amanidx/internal/index"
)

// StatusInfo is everything the status command shows for one workspace.
type StatusInfo struct {
	Status            index.IndexStatus           `json:"status"`
	Backend           string                      `json:"backend"`
	ActiveModel       string                      `json:"active_model,omitempty"`
	EmbeddingDegraded bool                        `json:"embedding_degraded"`
	Diagnostics       *index.WorkspaceDiagnostics `json:"diagnostics,omitempty"`
	DatabaseSize      int64                       `json:"database_size"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	st := info.Status
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(r.out, format, args...) }

	p("%s\n\n", r.styles.Header.Render("Index Status: "+st.Workspace))
	p("  State:        %s", r.styles.stateStyle(string(st.State)).Render(string(st.State)))
	if st.Paused {
		p(" %s", r.styles.Warning.Render("(paused)"))
	}
	if st.Incomplete {
		p(" %s", r.styles.Warning.Render("(incomplete)"))
	}
	p("\n")
	if st.ErrorMessage != "" {
		p("  Message:      %s\n", st.ErrorMessage)
	}
	if st.PendingChanges > 0 {
		p("  Pending:      %d changes\n", st.PendingChanges)
	}
	p("  Files:        %d", st.IndexedFiles)
	if st.FailedFiles > 0 {
		p(" (%d failed)", st.FailedFiles)
	}
	p("\n")
	p("  Chunks:       %d (%d embedded)\n", st.TotalChunks, st.EmbeddedChunks)
	if !st.LastIndexedTime.IsZero() {
		p("  Last indexed: %s\n", r.formatTime(st.LastIndexedTime))
	}
	p("\n")

	p("  Storage:\n")
	p("    Backend:    %s\n", info.Backend)
	p("    Database:   %s\n", FormatBytes(info.DatabaseSize))
	if d := info.Diagnostics; d != nil {
		p("    Terms:      %d\n", d.Terms)
		p("    Vectors:    %d\n", d.Vectors)
		if d.ReadOnly {
			p("    Mode:       %s\n", r.styles.Warning.Render("read-only"))
		}
	}
	p("\n")

	p("  Embeddings:\n")
	if st.EmbeddingModel != "" {
		p("    Index:      %s (%d dims)\n", st.EmbeddingModel, st.Dimension)
	}
	if info.ActiveModel != "" {
		active := info.ActiveModel
		if info.EmbeddingDegraded {
			active += " " + r.styles.Warning.Render("(fallback)")
		}
		p("    Active:     %s\n", active)
	}
	return nil
}

// RenderJSON writes the report as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count as B, KB, MB or GB.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
