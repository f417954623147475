package index

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/amanidx/internal/chunk"
	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/embed"
	"github.com/Aman-CERP/amanidx/internal/namespace"
	"github.com/Aman-CERP/amanidx/internal/scanner"
	"github.com/Aman-CERP/amanidx/internal/watcher"
)

// Backend names.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Router delegates every call to the local or remote Service according to
// storage.backend. Callers cannot tell which one served them.
type Router struct {
	backend string
	local   Service
	remote  Service
}

var _ Service = (*Router)(nil)

// NewRouter creates a Router. remote may be nil, in which case every call
// goes to local.
func NewRouter(backend string, local, remote Service) *Router {
	return &Router{backend: strings.ToLower(backend), local: local, remote: remote}
}

func (r *Router) pick() Service {
	if r.backend == BackendRemote && r.remote != nil {
		return r.remote
	}
	return r.local
}

func (r *Router) BuildFullIndex(ctx context.Context, workspace string) error {
	return r.pick().BuildFullIndex(ctx, workspace)
}

func (r *Router) RefreshPaths(ctx context.Context, workspace string, uris []string) error {
	return r.pick().RefreshPaths(ctx, workspace, uris)
}

func (r *Router) Notify(workspace string, events []watcher.FileEvent) {
	r.pick().Notify(workspace, events)
}

func (r *Router) Pause(workspace string)  { r.pick().Pause(workspace) }
func (r *Router) Resume(workspace string) { r.pick().Resume(workspace) }

func (r *Router) Rebuild(ctx context.Context, workspace string) error {
	return r.pick().Rebuild(ctx, workspace)
}

func (r *Router) DeleteIndex(ctx context.Context, workspace string) error {
	return r.pick().DeleteIndex(ctx, workspace)
}

func (r *Router) Status(workspace string) IndexStatus {
	return r.pick().Status(workspace)
}

func (r *Router) Diagnostics(ctx context.Context) Diagnostics {
	return r.pick().Diagnostics(ctx)
}

func (r *Router) SearchLexical(ctx context.Context, workspace, query string, maxResults int) ([]*Hit, error) {
	return r.pick().SearchLexical(ctx, workspace, query, maxResults)
}

func (r *Router) SearchVector(ctx context.Context, workspace string, query []float32, model string, k int) ([]*Hit, error) {
	return r.pick().SearchVector(ctx, workspace, query, model, k)
}

// Close closes both services.
func (r *Router) Close() error {
	var errs []error
	if r.local != nil {
		errs = append(errs, r.local.Close())
	}
	if r.remote != nil {
		errs = append(errs, r.remote.Close())
	}
	return errors.Join(errs...)
}

// NewService wires the Service described by cfg on top of gateway. With
// indexing disabled it returns Disabled. The gateway stays owned by the
// caller.
func NewService(cfg *config.Config, gateway *embed.Gateway, onProgress func(IndexStatus), logger *slog.Logger) (Service, error) {
	if !cfg.Indexing.Enabled {
		return Disabled{}, nil
	}

	scan, err := scanner.New()
	if err != nil {
		return nil, err
	}
	chunker := chunk.New(chunk.NewLanguageRegistry(), chunk.Options{WindowLines: cfg.Indexing.WindowLines}, logger)

	local, err := New(Options{
		Config:     cfg,
		Gateway:    gateway,
		Chunker:    chunker,
		Scanner:    scan,
		Backend:    BackendLocal,
		OnProgress: onProgress,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	var remote Service
	if strings.EqualFold(cfg.Storage.Backend, BackendRemote) {
		userID, err := namespace.UserID(namespace.Options{
			AccountID: cfg.Identity.AccountID,
			DataDir:   cfg.Storage.DataDir,
		})
		if err != nil {
			return nil, err
		}
		remote, err = New(Options{
			Config:     cfg,
			Gateway:    gateway,
			Chunker:    chunker,
			Scanner:    scan,
			Vectors:    RemoteVectors(cfg.Storage.Qdrant, userID, logger),
			Backend:    BackendRemote,
			OnProgress: onProgress,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return NewRouter(cfg.Storage.Backend, local, remote), nil
}
