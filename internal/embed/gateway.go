package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// Options tunes a Gateway. Zero values take the package defaults.
type Options struct {
	MaxBatchItems  int
	MaxBatchTokens int

	// RequestsPerMinute caps remote requests; <= 0 disables the limit.
	RequestsPerMinute int

	Retry   amerrors.RetryConfig
	Timeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.MaxBatchItems <= 0 {
		o.MaxBatchItems = DefaultMaxBatchItems
	}
	if o.MaxBatchTokens <= 0 {
		o.MaxBatchTokens = DefaultMaxBatchTokens
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = amerrors.DefaultRetryConfig()
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
}

// Gateway is the single entry point for turning text into vectors.
type Gateway struct {
	strategy *Strategy
	cache    *Cache
	limiter  *windowLimiter
	opts     Options
	logger   *slog.Logger
}

// NewGateway creates a gateway over strategy. cache may be nil.
func NewGateway(strategy *Strategy, cache *Cache, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts.applyDefaults()
	return &Gateway{
		strategy: strategy,
		cache:    cache,
		limiter:  newWindowLimiter(opts.RequestsPerMinute),
		opts:     opts,
		logger:   logger,
	}
}

type batch struct {
	indices []int
	texts   []string
}

// Embed returns one vector per input text, in input order. Blank texts are
// not sent and receive a zero vector. All vectors of one call come from the
// same provider: when a fallback takes over, the whole call is redone on it.
//
// When ctx is cancelled the vectors of finished batches are returned with a
// *PartialError; slots that were not reached are nil.
func (g *Gateway) Embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	vecs, _, err := g.EmbedWithModel(ctx, texts, inputType)
	return vecs, err
}

// EmbedWithModel is Embed that also reports the model id of the provider
// that produced the vectors.
func (g *Gateway) EmbedWithModel(ctx context.Context, texts []string, inputType InputType) ([][]float32, string, error) {
	if len(texts) == 0 {
		return [][]float32{}, g.ActiveModel(), nil
	}

	var indices []int
	var prepared []string
	for i, text := range texts {
		if blank(text) {
			continue
		}
		indices = append(indices, i)
		prepared = append(prepared, g.truncate(text))
	}
	if filtered := len(texts) - len(indices); filtered > 0 {
		g.logger.Debug("embedding_inputs_filtered",
			slog.Int("filtered", filtered),
			slog.Int("total", len(texts)))
	}
	batches := planBatches(indices, prepared, g.opts.MaxBatchItems, g.opts.MaxBatchTokens)

	var result [][]float32
	var done int
	var model string
	err := g.strategy.Do(ctx, func(p Provider) error {
		result = make([][]float32, len(texts))
		done = 0
		model = p.Model()
		for _, b := range batches {
			vecs, err := g.embedBatch(ctx, p, b.texts, inputType)
			if err != nil {
				return err
			}
			for j, idx := range b.indices {
				result[idx] = vecs[j]
			}
			done += len(b.indices)
		}
		for i := range result {
			if result[i] == nil {
				result[i] = make([]float32, p.Dimensions())
			}
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, model, &PartialError{Completed: done, Err: ctxErr}
		}
		return nil, "", err
	}
	return result, model, nil
}

// truncate cuts a text that alone exceeds the batch token budget.
func (g *Gateway) truncate(text string) string {
	if estimateTokens(text) <= g.opts.MaxBatchTokens {
		return text
	}
	limit := int(float64(g.opts.MaxBatchTokens*charsPerToken) * truncateMargin)
	runes := []rune(text)
	g.logger.Warn("embedding_input_truncated",
		slog.Int("chars", len(runes)),
		slog.Int("limit", limit))
	return string(runes[:limit])
}

// planBatches groups texts so no batch exceeds maxItems texts or maxTokens
// estimated tokens.
func planBatches(indices []int, texts []string, maxItems, maxTokens int) []batch {
	var batches []batch
	var cur batch
	tokens := 0
	for i, text := range texts {
		t := estimateTokens(text)
		if len(cur.texts) > 0 && (len(cur.texts) >= maxItems || tokens+t > maxTokens) {
			batches = append(batches, cur)
			cur = batch{}
			tokens = 0
		}
		cur.indices = append(cur.indices, indices[i])
		cur.texts = append(cur.texts, text)
		tokens += t
	}
	if len(cur.texts) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

// embedBatch serves cached vectors and sends the rest in one request,
// retried per the gateway policy.
func (g *Gateway) embedBatch(ctx context.Context, p Provider, texts []string, inputType InputType) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := g.cache.Get(p.Model(), inputType, text); ok {
			vecs[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return vecs, nil
	}

	attempt := 0
	fresh, err := amerrors.RetryWithResult(ctx, g.opts.Retry, func() ([][]float32, error) {
		attempt++
		return g.request(ctx, p, missTexts, inputType)
	}, func(err error, wait time.Duration) {
		g.logger.Warn("embedding_retry",
			slog.String("provider", string(p.Kind())),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	})
	if err != nil {
		return nil, err
	}
	if err := checkShape(fresh, len(missTexts), p.Dimensions()); err != nil {
		return nil, err
	}

	for j, i := range missIdx {
		vecs[i] = fresh[j]
		g.cache.Add(p.Model(), inputType, missTexts[j], fresh[j])
	}
	return vecs, nil
}

// request issues one provider call under the rate limit and timeout.
func (g *Gateway) request(ctx context.Context, p Provider, texts []string, inputType InputType) ([][]float32, error) {
	if p.Kind().Remote() {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	vecs, err := p.EmbedBatch(reqCtx, texts, inputType)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, amerrors.New(amerrors.ErrCodeNetworkTimeout,
			fmt.Sprintf("%s embedding request timed out after %s", p.Kind(), g.opts.Timeout), err)
	}
	return vecs, err
}

// checkShape rejects responses with the wrong vector count or length.
func checkShape(vecs [][]float32, want, dims int) error {
	if len(vecs) != want {
		return amerrors.New(amerrors.ErrCodeUnexpectedResponseShape,
			fmt.Sprintf("expected %d vectors, got %d", want, len(vecs)), nil)
	}
	for i, v := range vecs {
		if len(v) != dims {
			return amerrors.New(amerrors.ErrCodeUnexpectedResponseShape,
				fmt.Sprintf("vector %d has %d dimensions, expected %d", i, len(v), dims), nil).
				WithDetail("index", fmt.Sprint(i))
		}
	}
	return nil
}

// ActiveModel is the model of the provider that served the most recent call.
func (g *Gateway) ActiveModel() string {
	if p := g.strategy.Active(); p != nil {
		return p.Model()
	}
	return ""
}

// Dimensions is the vector length of the active provider.
func (g *Gateway) Dimensions() int {
	if p := g.strategy.Active(); p != nil {
		return p.Dimensions()
	}
	return 0
}

// Degraded reports whether a fallback provider is serving.
func (g *Gateway) Degraded() bool {
	return g.strategy.Degraded()
}

// Settled reports whether vectors from model are final for now. See
// Strategy.Settled.
func (g *Gateway) Settled(model string) bool {
	return g.strategy.Settled(model)
}

// Close closes the providers.
func (g *Gateway) Close() error {
	return g.strategy.Close()
}
