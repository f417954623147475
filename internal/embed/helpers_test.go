package embed

import (
	"context"
	"math"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// fakeProvider records every batch it receives. Vector i of a batch is
// {len(text), 1, 0, ...}.
type fakeProvider struct {
	kind  ProviderKind
	model string
	dims  int

	mu     sync.Mutex
	calls  [][]string
	err    error
	onCall func(n int)
}

func newFakeProvider(model string, dims int) *fakeProvider {
	return &fakeProvider{kind: KindHTTP, model: model, dims: dims}
}

func (f *fakeProvider) Kind() ProviderKind { return f.kind }
func (f *fakeProvider) Model() string      { return f.model }
func (f *fakeProvider) Dimensions() int    { return f.dims }
func (f *fakeProvider) Close() error       { return nil }

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string, _ InputType) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	n := len(f.calls)
	err := f.err
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(n)
	}
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, f.dims)
		v[0] = float32(len([]rune(text)))
		if f.dims > 1 {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProvider) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.calls))
	for i, c := range f.calls {
		sizes[i] = len(c)
	}
	return sizes
}

// fastRetry keeps the retry schedule but with millisecond delays.
func fastRetry() amerrors.RetryConfig {
	return amerrors.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2,
	}
}

func newTestGateway(cache *Cache, providers ...Provider) *Gateway {
	return NewGateway(NewStrategy(nil, providers...), cache, Options{Retry: fastRetry()}, nil)
}
