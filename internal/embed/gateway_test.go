package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

func TestEmbed_BlankTextsKeepPositions(t *testing.T) {
	// Given: blank entries between real texts
	p := newFakeProvider("m", 4)
	g := newTestGateway(nil, p)

	// When: embedding
	vecs, err := g.Embed(context.Background(), []string{"alpha", "", "  ", "beta"}, InputDocument)

	// Then: one vector per input, blanks are zero vectors never sent
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Equal(t, float32(5), vecs[0][0])
	assert.Equal(t, []float32{0, 0, 0, 0}, vecs[1])
	assert.Equal(t, []float32{0, 0, 0, 0}, vecs[2])
	assert.Equal(t, float32(4), vecs[3][0])
	assert.Equal(t, [][]string{{"alpha", "beta"}}, p.calls)
}

func TestEmbed_EmptyInput(t *testing.T) {
	p := newFakeProvider("m", 2)

	vecs, err := newTestGateway(nil, p).Embed(context.Background(), nil, InputDocument)

	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, p.callCount())
}

func TestEmbed_BatchesByItemCount(t *testing.T) {
	p := newFakeProvider("m", 2)
	texts := make([]string, 300)
	for i := range texts {
		texts[i] = "text"
	}

	vecs, err := newTestGateway(nil, p).Embed(context.Background(), texts, InputDocument)

	require.NoError(t, err)
	assert.Len(t, vecs, 300)
	assert.Equal(t, []int{128, 128, 44}, p.batchSizes())
}

func TestEmbed_BatchesByTokenBudget(t *testing.T) {
	// Given: three texts of 50k estimated tokens each
	p := newFakeProvider("m", 2)
	big := strings.Repeat("a", 200000)

	// When: embedding under the default 120k budget
	_, err := newTestGateway(nil, p).Embed(context.Background(), []string{big, big, big}, InputDocument)

	// Then: two fit together, the third goes alone
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, p.batchSizes())
}

func TestEmbed_OversizeTextIsTruncated(t *testing.T) {
	// Given: one text above the whole token budget and one normal text
	p := newFakeProvider("m", 2)
	huge := strings.Repeat("x", 500000)

	// When: embedding both
	vecs, err := newTestGateway(nil, p).Embed(context.Background(), []string{huge, "small"}, InputDocument)

	// Then: two vectors, and the huge text was cut to 90% of the budget
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	require.Equal(t, 1, p.callCount())
	assert.Len(t, p.calls[0][0], 432000)
	assert.Equal(t, "small", p.calls[0][1])
}

func TestEmbed_CacheSkipsProvider(t *testing.T) {
	p := newFakeProvider("m", 2)
	cache := NewCache(16)
	g := newTestGateway(cache, p)

	first, err := g.Embed(context.Background(), []string{"a", "b"}, InputQuery)
	require.NoError(t, err)
	second, err := g.Embed(context.Background(), []string{"b", "a"}, InputQuery)
	require.NoError(t, err)

	assert.Equal(t, 1, p.callCount())
	assert.Equal(t, first[0], second[1])
	assert.Equal(t, 2, cache.Len())

	// A different input type is a different key.
	_, err = g.Embed(context.Background(), []string{"a"}, InputDocument)
	require.NoError(t, err)
	assert.Equal(t, 2, p.callCount())
}

func TestEmbed_CancellationReturnsCompletedBatches(t *testing.T) {
	// Given: a provider that cancels the caller after its first batch
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newFakeProvider("m", 2)
	p.onCall = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	g := NewGateway(NewStrategy(nil, p), nil, Options{MaxBatchItems: 2, Retry: fastRetry()}, nil)

	// When: embedding three batches
	vecs, err := g.Embed(ctx, []string{"a", "b", "c", "d", "e"}, InputDocument)

	// Then: the first batch is kept and the error says how far it got
	var partial *PartialError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Completed)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, vecs, 5)
	assert.NotNil(t, vecs[0])
	assert.NotNil(t, vecs[1])
	assert.Nil(t, vecs[2])
}

func TestEmbed_FallsBackAndReportsModel(t *testing.T) {
	// Given: a primary that always fails and the hash provider behind it
	primary := newFakeProvider("remote-model", 8)
	primary.err = amerrors.New(amerrors.ErrCodeProviderError, "boom", nil)
	g := newTestGateway(nil, primary, NewHashProvider())
	assert.Equal(t, "remote-model", g.ActiveModel())

	// When: embedding
	vecs, err := g.Embed(context.Background(), []string{"x", ""}, InputDocument)

	// Then: every vector comes from the fallback, which is reported
	require.NoError(t, err)
	assert.Len(t, vecs[0], HashDimensions)
	assert.Len(t, vecs[1], HashDimensions)
	assert.Equal(t, HashModel, g.ActiveModel())
	assert.Equal(t, HashDimensions, g.Dimensions())
	assert.True(t, g.Degraded())
}

func TestEmbed_SingleProviderErrorSurfaces(t *testing.T) {
	p := newFakeProvider("m", 2)
	p.err = amerrors.New(amerrors.ErrCodeProviderError, "boom", nil)

	_, err := newTestGateway(nil, p).Embed(context.Background(), []string{"x"}, InputDocument)

	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeProviderError))
	assert.Equal(t, 1, p.callCount())
}

// embeddingServer answers the generic JSON protocol. handle may override the
// response for a given request number.
func embeddingServer(t *testing.T, dims int, handle func(n int32, w http.ResponseWriter) bool) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var count atomic.Int32
	var last atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := count.Add(1)
		var req httpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		last.Store(req)
		if handle != nil && handle(n, w) {
			return
		}

		var resp httpResponse
		for range req.Input {
			v := make([]float64, dims)
			v[0] = 1
			resp.Data = append(resp.Data, struct {
				Embedding []float64 `json:"embedding"`
			}{Embedding: v})
		}
		resp.Usage.TotalTokens = len(req.Input)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &count, &last
}

func newHTTPGateway(t *testing.T, url string, dims int) *Gateway {
	t.Helper()
	p, err := NewHTTPProvider(HTTPConfig{Endpoint: url, Model: "test-model", APIKey: "secret", Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return newTestGateway(nil, p)
}

func TestHTTP_SendsModelAndInputType(t *testing.T) {
	srv, _, last := embeddingServer(t, 3, nil)

	vecs, err := newHTTPGateway(t, srv.URL, 3).Embed(context.Background(), []string{"q"}, InputQuery)

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vecs[0])
	req := last.Load().(httpRequest)
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, []string{"q"}, req.Input)
	assert.Equal(t, InputQuery, req.InputType)
}

func TestHTTP_RetriesRateLimit(t *testing.T) {
	// Given: a server that rate limits the first two requests
	srv, count, _ := embeddingServer(t, 2, func(n int32, w http.ResponseWriter) bool {
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return true
		}
		return false
	})

	// When: embedding
	vecs, err := newHTTPGateway(t, srv.URL, 2).Embed(context.Background(), []string{"a"}, InputDocument)

	// Then: the third attempt succeeds
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(3), count.Load())
}

func TestHTTP_RateLimitGivesUpAfterFiveAttempts(t *testing.T) {
	srv, count, _ := embeddingServer(t, 2, func(_ int32, w http.ResponseWriter) bool {
		w.WriteHeader(http.StatusTooManyRequests)
		return true
	})

	_, err := newHTTPGateway(t, srv.URL, 2).Embed(context.Background(), []string{"a"}, InputDocument)

	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeRateLimited))
	assert.Equal(t, int32(5), count.Load())
}

func TestHTTP_UnauthorizedFailsFast(t *testing.T) {
	srv, count, _ := embeddingServer(t, 2, func(_ int32, w http.ResponseWriter) bool {
		w.WriteHeader(http.StatusUnauthorized)
		return true
	})

	_, err := newHTTPGateway(t, srv.URL, 2).Embed(context.Background(), []string{"a"}, InputDocument)

	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeInvalidCredentials))
	assert.Equal(t, int32(1), count.Load())
}

func TestHTTP_OtherStatusCarriesBody(t *testing.T) {
	srv, count, _ := embeddingServer(t, 2, func(_ int32, w http.ResponseWriter) bool {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("input too long"))
		return true
	})

	_, err := newHTTPGateway(t, srv.URL, 2).Embed(context.Background(), []string{"a"}, InputDocument)

	require.True(t, amerrors.HasCode(err, amerrors.ErrCodeProviderError))
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "input too long")
	assert.Equal(t, int32(1), count.Load())
}

func TestHTTP_ShapeMismatch(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"too few vectors", `{"data":[{"embedding":[1,0]}]}`},
		{"wrong dimension", `{"data":[{"embedding":[1,0,0]},{"embedding":[1,0]}]}`},
		{"not json", `oops`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, count, _ := embeddingServer(t, 2, func(_ int32, w http.ResponseWriter) bool {
				_, _ = w.Write([]byte(tt.body))
				return true
			})

			_, err := newHTTPGateway(t, srv.URL, 2).Embed(context.Background(), []string{"a", "b"}, InputDocument)

			assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeUnexpectedResponseShape), "got %v", err)
			assert.Equal(t, int32(1), count.Load())
		})
	}
}

func TestHTTP_UnreachableFallsBackToHash(t *testing.T) {
	srv, _, _ := embeddingServer(t, 2, nil)
	url := srv.URL
	srv.Close()

	remote, err := NewHTTPProvider(HTTPConfig{Endpoint: url, Model: "m", Dimensions: 2})
	require.NoError(t, err)
	g := NewGateway(NewStrategy(nil, remote, NewHashProvider()), nil,
		Options{Retry: amerrors.RetryConfig{MaxAttempts: 1}}, nil)

	vecs, err := g.Embed(context.Background(), []string{"a"}, InputDocument)

	require.NoError(t, err)
	assert.Len(t, vecs[0], HashDimensions)
	assert.Equal(t, HashModel, g.ActiveModel())
}

func TestNewHTTPProvider_RequiresEndpointAndDimensions(t *testing.T) {
	_, err := NewHTTPProvider(HTTPConfig{Dimensions: 2})
	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeConfigInvalid))

	_, err = NewHTTPProvider(HTTPConfig{Endpoint: "http://localhost"})
	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeConfigInvalid))
}

func TestPartialError_Message(t *testing.T) {
	err := &PartialError{Completed: 3, Err: context.Canceled}

	assert.Equal(t, "embedding interrupted after 3 texts: context canceled", err.Error())
	assert.True(t, errors.Is(err, context.Canceled))
}
