package ui

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/chunk"
	"github.com/Aman-CERP/amanidx/internal/index"
	"github.com/Aman-CERP/amanidx/internal/search"
)

func TestResultsRenderer_Render(t *testing.T) {
	// Given: a response with one hybrid hit
	resp := &search.Response{
		Recency: search.Recency{State: index.StateReady},
		Results: []*search.Result{{
			ChunkID:    "c1",
			URI:        "pkg/nav.go",
			Score:      0.95,
			Snippet:    "func navigation() {\n}\n",
			Range:      &chunk.Range{StartLine: 3, EndLine: 4},
			Provenance: []string{search.ProvenanceLexical, search.ProvenanceVector},
		}},
	}
	buf := &bytes.Buffer{}

	// When: rendering without color
	require.NoError(t, NewResultsRenderer(buf, true).Render(resp))

	// Then: location, score, provenance and snippet are shown
	out := buf.String()
	assert.Contains(t, out, " 1. pkg/nav.go:3-4  0.950  [lexical+vector]")
	assert.Contains(t, out, "    func navigation() {")
	assert.NotContains(t, out, "index is")
}

func TestResultsRenderer_TruncatesLongSnippets(t *testing.T) {
	resp := &search.Response{
		Recency: search.Recency{State: index.StateStale},
		Results: []*search.Result{{URI: "a.go", Snippet: strings.Repeat("line\n", 20), Provenance: []string{"vector"}}},
	}
	buf := &bytes.Buffer{}

	require.NoError(t, NewResultsRenderer(buf, true).Render(resp))

	out := buf.String()
	assert.Equal(t, snippetLines, strings.Count(out, "    line"))
	assert.Contains(t, out, "    ...")
	assert.Contains(t, out, "index is stale")
}

func TestResultsRenderer_Empty(t *testing.T) {
	tests := []struct {
		state index.State
		want  string
	}{
		{index.StateReady, "No results.\n"},
		{index.StateUninitialized, "No results (index uninitialized). Run 'amanidx index' first.\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			buf := &bytes.Buffer{}

			require.NoError(t, NewResultsRenderer(buf, true).Render(&search.Response{
				Recency: search.Recency{State: tt.state},
				Results: []*search.Result{},
			}))

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestResultsRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	resp := &search.Response{
		Recency: search.Recency{State: index.StateUninitialized},
		Results: []*search.Result{},
	}

	require.NoError(t, NewResultsRenderer(buf, true).RenderJSON(resp))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "uninitialized", decoded["recency"].(map[string]any)["state"])
	assert.Equal(t, []any{}, decoded["results"])
}
