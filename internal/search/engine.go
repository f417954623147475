package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/embed"
	"github.com/Aman-CERP/amanidx/internal/index"
)

// QueryEmbedder turns query text into a vector and names the model used.
// *embed.Gateway satisfies it.
type QueryEmbedder interface {
	EmbedWithModel(ctx context.Context, texts []string, inputType embed.InputType) ([][]float32, string, error)
}

// Engine is the search façade over an index.Service.
type Engine struct {
	index    index.Service
	embedder QueryEmbedder
	config   config.SearchConfig
	logger   *slog.Logger
}

// NewEngine creates an Engine. A nil logger discards output.
func NewEngine(svc index.Service, embedder QueryEmbedder, cfg config.SearchConfig, logger *slog.Logger) (*Engine, error) {
	if svc == nil {
		return nil, fmt.Errorf("index service is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("query embedder is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{index: svc, embedder: embedder, config: cfg, logger: logger}, nil
}

// DefaultOptions returns the options configured in search.*.
func (e *Engine) DefaultOptions(workspace string) Options {
	return Options{
		Workspace:  workspace,
		MaxResults: e.config.MaxResults,
		Lexical:    e.config.Lexical,
	}
}

// Search runs a hybrid query against opts.Workspace.
//
// A workspace that is not indexed, or has search switched off, answers with
// no results and recency state uninitialized, without calling the embedding
// provider. Failures of one sub-search are logged and the other side's hits
// are still returned; the only error is ctx's.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()

	st := e.index.Status(opts.Workspace)
	if !e.config.Enabled {
		st = index.IndexStatus{Workspace: opts.Workspace, State: index.StateUninitialized}
	}
	if !st.State.Queryable() {
		return emptyResponse(st), nil
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return emptyResponse(st), nil
	}

	var lexHits, vecHits []*index.Hit
	var g errgroup.Group

	if opts.Lexical || opts.LexicalOnly {
		g.Go(func() error {
			hits, err := e.index.SearchLexical(ctx, opts.Workspace, query, e.config.LexicalRowLimit)
			if err != nil {
				e.logSubFailure(ctx, ProvenanceLexical, opts.Workspace, err)
				return nil
			}
			lexHits = hits
			return nil
		})
	}
	if !opts.LexicalOnly {
		g.Go(func() error {
			hits, err := e.searchVector(ctx, opts.Workspace, query)
			if err != nil {
				e.logSubFailure(ctx, ProvenanceVector, opts.Workspace, err)
				return nil
			}
			vecHits = hits
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := merge(lexHits, vecHits)
	limit := opts.MaxResults
	if limit == 0 {
		limit = e.config.MaxResults
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	// Re-read so a mismatch detected by the vector side shows as degraded.
	resp := &Response{Recency: recencyOf(e.index.Status(opts.Workspace)), Results: results}

	e.logger.Debug("search_completed",
		slog.String("workspace", opts.Workspace),
		slog.Int("lexical_hits", len(lexHits)),
		slog.Int("vector_hits", len(vecHits)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return resp, nil
}

func (e *Engine) searchVector(ctx context.Context, workspace, query string) ([]*index.Hit, error) {
	vecs, model, err := e.embedder.EmbedWithModel(ctx, []string{query}, embed.InputQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: no vector returned")
	}
	topK := e.config.TopK
	if topK <= 0 {
		topK = config.NewConfig().Search.TopK
	}
	return e.index.SearchVector(ctx, workspace, vecs[0], model, topK)
}

func (e *Engine) logSubFailure(ctx context.Context, side, workspace string, err error) {
	if ctx.Err() != nil {
		return
	}
	e.logger.Warn("search_partial",
		slog.String("workspace", workspace),
		slog.String("failed", side),
		slog.String("error", err.Error()))
}
