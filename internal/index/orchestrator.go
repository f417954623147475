package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Aman-CERP/amanidx/internal/chunk"
	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/embed"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/lexical"
	"github.com/Aman-CERP/amanidx/internal/namespace"
	"github.com/Aman-CERP/amanidx/internal/scanner"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/vectorstore"
	"github.com/Aman-CERP/amanidx/internal/watcher"
)

// workspacesDir holds one data directory per workspace hash.
const workspacesDir = "workspaces"

// progressInterval throttles progress log lines.
const progressInterval = 2 * time.Second

// Options contains the injected dependencies of an Orchestrator.
type Options struct {
	Config  *config.Config
	Gateway *embed.Gateway
	Chunker chunk.Chunker
	Scanner *scanner.Scanner

	// Vectors opens each workspace's vector index. Defaults to
	// StreamedVectors when storage.stream_vectors is set, else LocalVectors.
	Vectors VectorOpener
	// Backend names the vector backend in diagnostics.
	Backend string

	// OnProgress, when set, receives a status copy after every file.
	OnProgress func(IndexStatus)

	Logger *slog.Logger
}

// Orchestrator is the Service implementation. Lexical data always lives in
// the workspace database; vectors live wherever Options.Vectors puts them.
type Orchestrator struct {
	cfg        *config.Config
	gateway    *embed.Gateway
	chunker    chunk.Chunker
	scanner    *scanner.Scanner
	vectors    VectorOpener
	backend    string
	onProgress func(IndexStatus)
	logger     *slog.Logger
	progress   rate.Sometimes

	// ctx scopes background refreshes started by Notify.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	workspaces map[string]*workspace
	closed     bool
}

var _ Service = (*Orchestrator)(nil)

// workspace is the per-root state. Stores are opened lazily.
type workspace struct {
	root   string
	hash   string
	dir    string
	lock   *writeLock
	gate   gate
	status *tracker

	storesMu sync.RWMutex
	db       *store.DB
	lex      *lexical.Store
	vec      vectorstore.Index
	shut     bool // set by Orchestrator.Close; stores never reopen

	debounceMu sync.Mutex
	debouncer  *watcher.Debouncer
}

func (ws *workspace) dbPath() string {
	return filepath.Join(ws.dir, store.FileName)
}

// stores returns the open stores, or nils when closed.
func (ws *workspace) stores() (*lexical.Store, vectorstore.Index, *store.DB) {
	ws.storesMu.RLock()
	defer ws.storesMu.RUnlock()
	return ws.lex, ws.vec, ws.db
}

func (ws *workspace) closeStores() {
	ws.storesMu.Lock()
	defer ws.storesMu.Unlock()

	if ws.vec != nil {
		_ = ws.vec.Close()
	}
	if ws.lex != nil {
		_ = ws.lex.Close()
	}
	if ws.db != nil {
		_ = ws.db.Close()
	}
	ws.db, ws.lex, ws.vec = nil, nil, nil
}

// shutdown closes the stores for good. The caller holds ws.lock so no job
// is using them.
func (ws *workspace) shutdown() {
	ws.storesMu.Lock()
	ws.shut = true
	ws.storesMu.Unlock()
	ws.closeStores()
}

func (ws *workspace) stopDebouncer() {
	ws.debounceMu.Lock()
	defer ws.debounceMu.Unlock()
	if ws.debouncer != nil {
		ws.debouncer.Stop()
		ws.debouncer = nil
	}
	ws.status.setPending(0)
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("embedding gateway is required")
	}
	if opts.Chunker == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if opts.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Vectors == nil {
		if opts.Config.Storage.StreamVectors {
			opts.Vectors = StreamedVectors(opts.Config.Storage.PageSize, opts.Logger)
		} else {
			opts.Vectors = LocalVectors(opts.Config.Storage.PageSize, opts.Logger)
		}
	}
	if opts.Backend == "" {
		opts.Backend = "local"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        opts.Config,
		gateway:    opts.Gateway,
		chunker:    opts.Chunker,
		scanner:    opts.Scanner,
		vectors:    opts.Vectors,
		backend:    opts.Backend,
		onProgress: opts.OnProgress,
		logger:     opts.Logger,
		progress:   rate.Sometimes{First: 1, Interval: progressInterval},
		ctx:        ctx,
		cancel:     cancel,
		workspaces: make(map[string]*workspace),
	}, nil
}

// WorkspaceDir returns the directory under dataDir holding the index of the
// workspace rooted at the absolute path root.
func WorkspaceDir(dataDir, root string) string {
	return filepath.Join(dataDir, workspacesDir, namespace.WorkspaceHash(root))
}

// workspace returns the entry for root, creating it without touching disk.
func (o *Orchestrator) workspace(root string) (*workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace path: %w", err)
	}
	abs = filepath.Clean(abs)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, errServiceClosed()
	}
	if ws, ok := o.workspaces[abs]; ok {
		return ws, nil
	}

	dir := WorkspaceDir(o.cfg.Storage.DataDir, abs)
	ws := &workspace{
		root:   abs,
		hash:   filepath.Base(dir),
		dir:    dir,
		lock:   newWriteLock(dir),
		status: newTracker(abs),
	}
	o.workspaces[abs] = ws
	return ws, nil
}

// open loads the workspace's stores. Without create, a workspace with no
// database on disk stays closed and open reports false.
func (o *Orchestrator) open(ctx context.Context, ws *workspace, create bool) (bool, error) {
	ws.storesMu.Lock()
	defer ws.storesMu.Unlock()

	if ws.shut {
		return false, errServiceClosed()
	}
	if ws.db != nil {
		return true, nil
	}
	if !create {
		if _, err := os.Stat(ws.dbPath()); err != nil {
			return false, nil
		}
	}

	db, err := store.Open(ctx, ws.dbPath(), o.logger)
	if err != nil {
		return false, err
	}
	lex, err := lexical.Open(ctx, db, o.logger)
	if err != nil {
		_ = db.Close()
		return false, err
	}

	model, _ := db.GetState(ctx, store.StateKeyEmbeddingModel)
	dimText, _ := db.GetState(ctx, store.StateKeyEmbeddingDimension)
	storedDim, _ := strconv.Atoi(dimText)
	dim := storedDim
	if dim == 0 {
		dim = o.gateway.Dimensions()
	}

	vec, err := o.vectors(ctx, ws.root, db, dim)
	if err != nil {
		_ = lex.Close()
		_ = db.Close()
		return false, err
	}
	ws.db, ws.lex, ws.vec = db, lex, vec

	stats := lex.Stats()
	if stats.Documents == 0 {
		return true, nil
	}

	// Restore status from what a previous run left on disk.
	embedded, err := vec.Count(ctx)
	if err != nil {
		o.logger.Warn("vector_count_failed", slog.String("workspace", ws.root), slog.String("error", err.Error()))
	}
	var last time.Time
	if text, _ := db.GetState(ctx, store.StateKeyLastIndexed); text != "" {
		last, _ = time.Parse(time.RFC3339Nano, text)
	}
	ws.status.setCounts(stats.Documents, stats.Chunks, embedded)
	ws.status.setEmbedding(model, storedDim)
	if db.ReadOnly() {
		ws.status.finish(StateDegraded, readOnlyError().Message, false, last)
	} else {
		ws.status.finish(StateReady, "", false, last)
	}

	o.logger.Info("index_loaded",
		slog.String("workspace", ws.root),
		slog.Int("documents", stats.Documents),
		slog.Int("chunks", stats.Chunks),
		slog.Int("vectors", embedded))
	return true, nil
}

func errServiceClosed() *amerrors.IndexError {
	return amerrors.New(amerrors.ErrCodeInternal, "index service is closed", nil)
}

// jobContext derives a context for write work that also ends when the
// orchestrator closes.
func (o *Orchestrator) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func readOnlyError() *amerrors.IndexError {
	return amerrors.New(amerrors.ErrCodeReadOnly,
		"index was written by a newer version and is read-only", store.ErrReadOnly).
		WithSuggestion("Upgrade amanidx or run 'amanidx rebuild' to recreate the index")
}

func (o *Orchestrator) scanOptions(root string) scanner.Options {
	return scanner.Options{
		Root:             root,
		Exclude:          o.cfg.Indexing.Exclude,
		RespectGitignore: o.cfg.Indexing.RespectGitignore,
		MaxFileSize:      o.cfg.Indexing.MaxFileSize,
	}
}

// BuildFullIndex implements Service.
func (o *Orchestrator) BuildFullIndex(ctx context.Context, root string) error {
	ws, err := o.workspace(root)
	if err != nil {
		return err
	}
	ctx, cancel := o.jobContext(ctx)
	defer cancel()

	if err := ws.lock.Lock(ctx); err != nil {
		return err
	}
	defer ws.lock.Unlock()

	return o.build(ctx, ws)
}

// RefreshPaths implements Service. Every path is validated before any work
// starts, so one path outside the workspace rejects the whole call.
func (o *Orchestrator) RefreshPaths(ctx context.Context, root string, uris []string) error {
	ws, err := o.workspace(root)
	if err != nil {
		return err
	}

	resolved := make([]string, 0, len(uris))
	seen := make(map[string]bool, len(uris))
	for _, u := range uris {
		uri, err := scanner.Resolve(ws.root, u)
		if err != nil {
			return err
		}
		if !seen[uri] {
			seen[uri] = true
			resolved = append(resolved, uri)
		}
	}
	if len(resolved) == 0 {
		return nil
	}

	ctx, cancel := o.jobContext(ctx)
	defer cancel()

	if err := ws.lock.Lock(ctx); err != nil {
		return err
	}
	defer ws.lock.Unlock()

	return o.refresh(ctx, ws, resolved)
}

// Pause implements Service.
func (o *Orchestrator) Pause(root string) {
	ws, err := o.workspace(root)
	if err != nil {
		return
	}
	ws.gate.pause()
	ws.status.setPaused(true)
	o.logger.Info("index_paused", slog.String("workspace", ws.root))
}

// Resume implements Service.
func (o *Orchestrator) Resume(root string) {
	ws, err := o.workspace(root)
	if err != nil {
		return
	}
	ws.gate.unpause()
	ws.status.setPaused(false)
	o.logger.Info("index_resumed", slog.String("workspace", ws.root))
}

// Rebuild implements Service.
func (o *Orchestrator) Rebuild(ctx context.Context, root string) error {
	if err := o.DeleteIndex(ctx, root); err != nil {
		return err
	}
	return o.BuildFullIndex(ctx, root)
}

// DeleteIndex implements Service.
func (o *Orchestrator) DeleteIndex(ctx context.Context, root string) error {
	ws, err := o.workspace(root)
	if err != nil {
		return err
	}
	if err := ws.lock.Lock(ctx); err != nil {
		return err
	}
	defer ws.lock.Unlock()

	ws.stopDebouncer()

	opened, err := o.open(ctx, ws, false)
	if err != nil {
		o.logger.Warn("index_open_failed", slog.String("workspace", ws.root), slog.String("error", err.Error()))
	}
	if opened {
		_, vec, _ := ws.stores()
		// Remote vectors do not go away with the database file.
		if err := vec.Clear(ctx); err != nil && !errors.Is(err, store.ErrReadOnly) {
			return fmt.Errorf("failed to clear vectors: %w", err)
		}
		ws.closeStores()
	}
	if err := store.Remove(ws.dbPath()); err != nil {
		return fmt.Errorf("failed to remove index database: %w", err)
	}

	ws.status.reset()
	o.logger.Info("index_deleted", slog.String("workspace", ws.root))
	return nil
}

// Status implements Service. A workspace indexed by an earlier process is
// loaded from disk on first use.
func (o *Orchestrator) Status(root string) IndexStatus {
	ws, err := o.workspace(root)
	if err != nil {
		return IndexStatus{Workspace: root, State: StateUninitialized}
	}
	if _, err := o.open(context.Background(), ws, false); err != nil {
		o.logger.Warn("index_open_failed", slog.String("workspace", ws.root), slog.String("error", err.Error()))
		ws.status.finish(StateError, err.Error(), false, time.Time{})
	}
	return ws.status.Snapshot()
}

// Diagnostics implements Service.
func (o *Orchestrator) Diagnostics(ctx context.Context) Diagnostics {
	o.mu.Lock()
	list := make([]*workspace, 0, len(o.workspaces))
	for _, ws := range o.workspaces {
		list = append(list, ws)
	}
	o.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].root < list[j].root })

	d := Diagnostics{
		Backend:           o.backend,
		Enabled:           true,
		EmbeddingModel:    o.gateway.ActiveModel(),
		EmbeddingDegraded: o.gateway.Degraded(),
		Workspaces:        make([]WorkspaceDiagnostics, 0, len(list)),
	}
	for _, ws := range list {
		lex, vec, db := ws.stores()
		if lex == nil {
			continue
		}
		st := ws.status.Snapshot()
		stats := lex.Stats()
		vectors, err := vec.Count(ctx)
		if err != nil {
			o.logger.Warn("vector_count_failed", slog.String("workspace", ws.root), slog.String("error", err.Error()))
		}
		d.Workspaces = append(d.Workspaces, WorkspaceDiagnostics{
			Workspace:       ws.root,
			Hash:            ws.hash,
			State:           st.State,
			Documents:       stats.Documents,
			Chunks:          stats.Chunks,
			Terms:           stats.Terms,
			AvgChunkLength:  stats.AvgChunkLength,
			Vectors:         vectors,
			Dimension:       st.Dimension,
			ReadOnly:        db.ReadOnly(),
			LexicalDegraded: lex.Degraded(),
			VectorDegraded:  vectorsDegraded(vec),
		})
	}
	return d
}

// vectorsDegraded reports persistence failures for indexes that track them.
func vectorsDegraded(vec vectorstore.Index) bool {
	if d, ok := vec.(interface{ Degraded() bool }); ok {
		return d.Degraded()
	}
	return false
}

// Close implements Service. Running jobs are cancelled and their stores are
// closed once each job has released the workspace. The gateway is owned by
// the caller.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	list := make([]*workspace, 0, len(o.workspaces))
	for _, ws := range o.workspaces {
		list = append(list, ws)
	}
	o.mu.Unlock()

	o.cancel()
	for _, ws := range list {
		ws.stopDebouncer()
		ws.gate.unpause()
	}
	for _, ws := range list {
		ws.lock.lockLocal()
		ws.shutdown()
		ws.lock.unlockLocal()
	}
	return nil
}
