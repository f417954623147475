package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/amanidx/internal/embed"
)

// checkTimeout bounds the provider round trip.
const checkTimeout = 15 * time.Second

// Embedder is the part of the embedding gateway the check needs.
type Embedder interface {
	EmbedWithModel(ctx context.Context, texts []string, inputType embed.InputType) ([][]float32, string, error)
	Degraded() bool
}

// CheckEmbedder embeds a short query. Indexing still works lexically
// without a provider, so failures are not critical.
func (c *Checker) CheckEmbedder(ctx context.Context, e Embedder) CheckResult {
	result := CheckResult{Name: "embeddings"}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	vecs, model, err := e.EmbedWithModel(ctx, []string{"amanidx preflight"}, embed.InputQuery)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		result.Details = "Check embeddings.runtime, embeddings.endpoint and the API key variable"
		return result
	}

	dims := 0
	if len(vecs) > 0 {
		dims = len(vecs[0])
	}
	result.Message = fmt.Sprintf("%s (%d dims)", model, dims)
	if e.Degraded() {
		result.Status = StatusWarn
		result.Message += ", fallback provider in use"
		result.Details = "The configured provider is unavailable; vectors from the fallback are not comparable with it"
		return result
	}
	result.Status = StatusPass
	return result
}
