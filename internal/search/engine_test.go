package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/embed"
	"github.com/Aman-CERP/amanidx/internal/index"
)

// fakeIndex serves canned hits and records what it was asked.
type fakeIndex struct {
	index.Disabled

	status    index.IndexStatus
	lexical   []*index.Hit
	vector    []*index.Hit
	lexErr    error
	vecErr    error
	afterVec  func()
	mu        sync.Mutex
	lexLimit  int
	vecK      int
	vecModel  string
	lexCalled bool
	vecCalled bool
}

func (f *fakeIndex) Status(string) index.IndexStatus { return f.status }

func (f *fakeIndex) SearchLexical(_ context.Context, _, _ string, limit int) ([]*index.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lexCalled = true
	f.lexLimit = limit
	return f.lexical, f.lexErr
}

func (f *fakeIndex) SearchVector(_ context.Context, _ string, _ []float32, model string, k int) ([]*index.Hit, error) {
	f.mu.Lock()
	f.vecCalled = true
	f.vecK = k
	f.vecModel = model
	f.mu.Unlock()
	if f.afterVec != nil {
		f.afterVec()
	}
	return f.vector, f.vecErr
}

// fakeEmbedder returns a fixed vector and counts calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	types []embed.InputType
	err   error
}

func (f *fakeEmbedder) EmbedWithModel(_ context.Context, texts []string, inputType embed.InputType) ([][]float32, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.types = append(f.types, inputType)
	if f.err != nil {
		return nil, "", f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, "fake-model", nil
}

func searchConfig() config.SearchConfig {
	return config.NewConfig().Search
}

func newTestEngine(t *testing.T, svc index.Service, emb QueryEmbedder, mutate ...func(*config.SearchConfig)) *Engine {
	t.Helper()
	cfg := searchConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := NewEngine(svc, emb, cfg, nil)
	require.NoError(t, err)
	return e
}

func readyIndex() *fakeIndex {
	return &fakeIndex{
		status:  index.IndexStatus{Workspace: "/ws", State: index.StateReady},
		lexical: []*index.Hit{hit("A", 3), hit("B", 1.5)},
		vector:  []*index.Hit{hit("B", 0.8), hit("C", 0.4)},
	}
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(nil, &fakeEmbedder{}, searchConfig(), nil)
	assert.Error(t, err)

	_, err = NewEngine(readyIndex(), nil, searchConfig(), nil)
	assert.Error(t, err)
}

func TestSearch_Hybrid(t *testing.T) {
	// Given: an indexed workspace with overlapping lexical and vector hits
	idx := readyIndex()
	emb := &fakeEmbedder{}
	e := newTestEngine(t, idx, emb)

	// When: searching with lexical enabled
	resp, err := e.Search(context.Background(), "  find things ", e.DefaultOptions("/ws"))

	// Then: results are merged and the query was embedded as a query
	require.NoError(t, err)
	assert.Equal(t, index.StateReady, resp.Recency.State)
	assert.Equal(t, []string{"A", "B", "C"}, ids(resp.Results))
	assert.Equal(t, []string{ProvenanceLexical, ProvenanceVector}, resp.Results[1].Provenance)
	assert.Equal(t, []embed.InputType{embed.InputQuery}, emb.types)

	cfg := searchConfig()
	assert.Equal(t, cfg.LexicalRowLimit, idx.lexLimit)
	assert.Equal(t, cfg.TopK, idx.vecK)
	assert.Equal(t, "fake-model", idx.vecModel)
}

func TestSearch_UninitializedSkipsProvider(t *testing.T) {
	// Given: indexing is disabled
	emb := &fakeEmbedder{}
	e := newTestEngine(t, index.Disabled{}, emb)

	// When: searching
	resp, err := e.Search(context.Background(), "navigation", e.DefaultOptions("/ws"))

	// Then: an empty uninitialized answer, and no provider call
	require.NoError(t, err)
	assert.Equal(t, index.StateUninitialized, resp.Recency.State)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Zero(t, emb.calls)
}

func TestSearch_SearchDisabled(t *testing.T) {
	idx := readyIndex()
	emb := &fakeEmbedder{}
	e := newTestEngine(t, idx, emb, func(c *config.SearchConfig) { c.Enabled = false })

	resp, err := e.Search(context.Background(), "navigation", e.DefaultOptions("/ws"))

	require.NoError(t, err)
	assert.Equal(t, index.StateUninitialized, resp.Recency.State)
	assert.Empty(t, resp.Results)
	assert.Zero(t, emb.calls)
	assert.False(t, idx.lexCalled)
}

func TestSearch_ErrorStateIsEmpty(t *testing.T) {
	idx := readyIndex()
	idx.status.State = index.StateError
	e := newTestEngine(t, idx, &fakeEmbedder{})

	resp, err := e.Search(context.Background(), "q", e.DefaultOptions("/ws"))

	require.NoError(t, err)
	assert.Equal(t, index.StateError, resp.Recency.State)
	assert.Empty(t, resp.Results)
}

func TestSearch_BlankQuery(t *testing.T) {
	emb := &fakeEmbedder{}
	e := newTestEngine(t, readyIndex(), emb)

	resp, err := e.Search(context.Background(), "   ", e.DefaultOptions("/ws"))

	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, emb.calls)
}

func TestSearch_VectorFailureKeepsLexical(t *testing.T) {
	idx := readyIndex()
	e := newTestEngine(t, idx, &fakeEmbedder{err: errors.New("provider down")})

	resp, err := e.Search(context.Background(), "q", e.DefaultOptions("/ws"))

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, ids(resp.Results))
	assert.False(t, idx.vecCalled)
}

func TestSearch_LexicalFailureKeepsVector(t *testing.T) {
	idx := readyIndex()
	idx.lexErr = errors.New("broken")
	e := newTestEngine(t, idx, &fakeEmbedder{})

	resp, err := e.Search(context.Background(), "q", e.DefaultOptions("/ws"))

	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, ids(resp.Results))
}

func TestSearch_BothFailIsEmpty(t *testing.T) {
	idx := readyIndex()
	idx.lexErr = errors.New("broken")
	idx.vecErr = errors.New("mismatch")
	e := newTestEngine(t, idx, &fakeEmbedder{})

	resp, err := e.Search(context.Background(), "q", e.DefaultOptions("/ws"))

	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestSearch_RecencyReflectsVectorSide(t *testing.T) {
	// Given: the vector side degrades the workspace while answering
	idx := readyIndex()
	idx.vecErr = errors.New("model mismatch")
	idx.afterVec = func() { idx.status.State = index.StateDegraded }
	e := newTestEngine(t, idx, &fakeEmbedder{})

	resp, err := e.Search(context.Background(), "q", e.DefaultOptions("/ws"))

	require.NoError(t, err)
	assert.Equal(t, index.StateDegraded, resp.Recency.State)
	assert.Equal(t, []string{"A", "B"}, ids(resp.Results))
}

func TestSearch_OptionsSelectSides(t *testing.T) {
	t.Run("vector only", func(t *testing.T) {
		idx := readyIndex()
		e := newTestEngine(t, idx, &fakeEmbedder{})

		resp, err := e.Search(context.Background(), "q", Options{Workspace: "/ws"})

		require.NoError(t, err)
		assert.False(t, idx.lexCalled)
		assert.Equal(t, []string{"B", "C"}, ids(resp.Results))
	})

	t.Run("lexical only", func(t *testing.T) {
		idx := readyIndex()
		emb := &fakeEmbedder{}
		e := newTestEngine(t, idx, emb)

		resp, err := e.Search(context.Background(), "q", Options{Workspace: "/ws", LexicalOnly: true})

		require.NoError(t, err)
		assert.Zero(t, emb.calls)
		assert.Equal(t, []string{"A", "B"}, ids(resp.Results))
	})
}

func TestSearch_MaxResults(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want int
	}{
		{"explicit", 2, 2},
		{"all", -1, 3},
		{"config default", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, readyIndex(), &fakeEmbedder{}, func(c *config.SearchConfig) { c.MaxResults = 1 })

			resp, err := e.Search(context.Background(), "q", Options{Workspace: "/ws", MaxResults: tt.max, Lexical: true})

			require.NoError(t, err)
			assert.Len(t, resp.Results, tt.want)
		})
	}
}

func TestSearch_Cancelled(t *testing.T) {
	e := newTestEngine(t, readyIndex(), &fakeEmbedder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Search(ctx, "q", e.DefaultOptions("/ws"))

	assert.ErrorIs(t, err, context.Canceled)
}
