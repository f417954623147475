package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/amanidx/internal/search"
)

// snippetLines caps the snippet lines printed per result.
const snippetLines = 6

// ResultsRenderer prints search responses.
type ResultsRenderer struct {
	out    io.Writer
	styles Styles
}

// NewResultsRenderer creates a results renderer.
func NewResultsRenderer(out io.Writer, noColor bool) *ResultsRenderer {
	return &ResultsRenderer{out: out, styles: GetStyles(noColor)}
}

// Render prints each result as a location header followed by an indented
// snippet.
func (r *ResultsRenderer) Render(resp *search.Response) error {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(r.out, format, args...) }

	state := string(resp.Recency.State)
	if len(resp.Results) == 0 {
		if resp.Recency.State.Queryable() {
			p("No results.\n")
		} else {
			p("No results (index %s). Run 'amanidx index' first.\n", r.styles.stateStyle(state).Render(state))
		}
		return nil
	}

	for i, res := range resp.Results {
		loc := res.URI
		if res.Range != nil {
			loc = fmt.Sprintf("%s:%d-%d", res.URI, res.Range.StartLine, res.Range.EndLine)
		}
		p("%s %s  %s  %s\n",
			r.styles.Dim.Render(fmt.Sprintf("%2d.", i+1)),
			r.styles.Path.Render(loc),
			r.styles.Active.Render(fmt.Sprintf("%.3f", res.Score)),
			r.styles.Label.Render("["+strings.Join(res.Provenance, "+")+"]"))

		lines := strings.Split(strings.TrimRight(res.Snippet, "\n"), "\n")
		if len(lines) > snippetLines {
			lines = append(lines[:snippetLines], "...")
		}
		for _, line := range lines {
			p("    %s\n", r.styles.Dim.Render(line))
		}
		p("\n")
	}

	if resp.Recency.State != "ready" {
		p("%s\n", r.styles.Warning.Render("index is "+state))
	}
	return nil
}

// RenderJSON writes the response as indented JSON.
func (r *ResultsRenderer) RenderJSON(resp *search.Response) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
