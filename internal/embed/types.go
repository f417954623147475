// Package embed turns chunk text into vectors. A Gateway batches, rate limits,
// retries and shape-checks calls to an ordered Strategy of providers, falling
// back from a remote provider to the local hash provider when the remote one
// is unusable.
package embed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Batching and retry defaults.
const (
	// DefaultMaxBatchItems bounds the number of texts sent in one request.
	DefaultMaxBatchItems = 128

	// DefaultMaxBatchTokens bounds the estimated tokens sent in one request.
	DefaultMaxBatchTokens = 120000

	// DefaultRequestsPerMinute is the provider request ceiling.
	DefaultRequestsPerMinute = 300

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 60 * time.Second

	// charsPerToken is the token estimate used for batching.
	charsPerToken = 4

	// truncateMargin leaves head room below the token budget for oversize texts.
	truncateMargin = 0.9
)

// InputType tells asymmetric embedding models whether a text is indexed
// content or a search query.
type InputType string

const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

// ProviderKind identifies an embedding backend.
type ProviderKind string

const (
	// KindHash is the local deterministic feature-hashing provider.
	KindHash ProviderKind = "hash"

	// KindHTTP is a generic JSON embedding endpoint.
	KindHTTP ProviderKind = "http"

	// KindOpenAI is the OpenAI embeddings API, or any compatible endpoint.
	KindOpenAI ProviderKind = "openai"
)

// Remote reports whether the kind calls out over the network.
func (k ProviderKind) Remote() bool {
	return k == KindHTTP || k == KindOpenAI
}

// Provider embeds one already-sized batch. Implementations do not batch,
// retry, or rate limit; the Gateway does.
type Provider interface {
	Kind() ProviderKind

	// Model is the identifier recorded alongside stored vectors.
	Model() string

	// Dimensions is the declared vector length. Responses of any other
	// length are rejected.
	Dimensions() int

	EmbedBatch(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)

	Close() error
}

// PartialError is returned when ctx is cancelled after some batches were
// embedded. The vectors of completed batches are still returned.
type PartialError struct {
	// Completed is the number of input texts that received a vector.
	Completed int
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("embedding interrupted after %d texts: %v", e.Completed, e.Err)
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// estimateTokens approximates the token count as ceil(chars/4).
func estimateTokens(text string) int {
	n := len([]rune(text))
	return (n + charsPerToken - 1) / charsPerToken
}

func blank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
