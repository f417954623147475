package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

func openAIServer(t *testing.T, status int, body string, seen *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if seen != nil {
			seen.Store(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAI_OrdersByIndexAndSendsInputType(t *testing.T) {
	// Given: a compatible endpoint that answers out of order
	var seen atomic.Value
	srv := openAIServer(t, http.StatusOK, `{
		"object": "list",
		"model": "custom-embed",
		"data": [
			{"object": "embedding", "index": 1, "embedding": [0, 1]},
			{"object": "embedding", "index": 0, "embedding": [1, 0]}
		],
		"usage": {"prompt_tokens": 2, "total_tokens": 2}
	}`, &seen)
	p, err := NewOpenAIProvider(OpenAIConfig{Model: "custom-embed", APIKey: "k", BaseURL: srv.URL + "/", Dimensions: 2})
	require.NoError(t, err)

	// When: embedding two texts as a query
	vecs, err := newTestGateway(nil, p).Embed(context.Background(), []string{"first", "second"}, InputQuery)

	// Then: vectors follow the input order and the extra field was sent
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	req := seen.Load().(map[string]any)
	assert.Equal(t, "custom-embed", req["model"])
	assert.Equal(t, "query", req["input_type"])
	assert.EqualValues(t, 2, req["dimensions"])
}

func TestOpenAI_UnauthorizedMapsToInvalidCredentials(t *testing.T) {
	srv := openAIServer(t, http.StatusUnauthorized,
		`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`, nil)
	p, err := NewOpenAIProvider(OpenAIConfig{Model: "text-embedding-3-small", APIKey: "bad", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = newTestGateway(nil, p).Embed(context.Background(), []string{"a"}, InputDocument)

	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeInvalidCredentials), "got %v", err)
}

func TestOpenAI_WrongDimensionIsShapeError(t *testing.T) {
	srv := openAIServer(t, http.StatusOK,
		`{"object": "list", "data": [{"object": "embedding", "index": 0, "embedding": [1, 0, 0]}]}`, nil)
	p, err := NewOpenAIProvider(OpenAIConfig{Model: "m", APIKey: "k", BaseURL: srv.URL + "/", Dimensions: 2})
	require.NoError(t, err)

	_, err = newTestGateway(nil, p).Embed(context.Background(), []string{"a"}, InputDocument)

	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeUnexpectedResponseShape))
}

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "text-embedding-3-small"})
	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeInvalidCredentials))

	_, err = NewOpenAIProvider(OpenAIConfig{Model: "unknown-model", APIKey: "k"})
	assert.True(t, amerrors.HasCode(err, amerrors.ErrCodeConfigInvalid))

	p, err := NewOpenAIProvider(OpenAIConfig{Model: "text-embedding-3-large", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Dimensions())
	assert.Equal(t, KindOpenAI, p.Kind())
}
