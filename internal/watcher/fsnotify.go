package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/amanidx/internal/scanner"
)

const eventBufferSize = 1000

// Watcher recursively watches a workspace root with fsnotify. Directories
// created later are added as they appear. Excluded paths never produce
// events.
type Watcher struct {
	fs     *fsnotify.Watcher
	scan   *scanner.Scanner
	opts   scanner.Options
	root   string
	events chan FileEvent
	logger *slog.Logger

	dropped  atomic.Uint64
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a watcher for opts.Root. Call Run to start it.
func New(scan *scanner.Scanner, opts scanner.Options, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	opts.Root = root

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fs:     fsw,
		scan:   scan,
		opts:   opts,
		root:   root,
		events: make(chan FileEvent, eventBufferSize),
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Events returns the stream of changes. It is closed when Run returns.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Dropped returns the number of events lost to a full buffer.
func (w *Watcher) Dropped() uint64 {
	return w.dropped.Load()
}

// Run watches until ctx is cancelled or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer func() { _ = w.fs.Close() }()

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	w.logger.Info("watch_started", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// Stop ends Run. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." {
		return
	}
	uri := filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Lstat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if filepath.Base(event.Name) == ".gitignore" {
		w.scan.InvalidateIgnoreCache()
		w.emit(FileEvent{URI: uri, Operation: OpIgnoreChange, Timestamp: time.Now()})
		return
	}
	if w.scan.Excluded(w.opts, uri, isDir) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		if isDir {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("watch_add_failed", slog.String("path", uri), slog.String("error", err.Error()))
			}
			return
		}
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}
	if isDir {
		return
	}

	w.emit(FileEvent{URI: uri, Operation: op, Timestamp: time.Now()})
}

// addRecursive watches dir and every non-excluded directory below it.
// Files already inside a newly created directory are reported as creates.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		uri := filepath.ToSlash(rel)

		if !d.IsDir() {
			if dir != w.root && d.Type().IsRegular() && !w.scan.Excluded(w.opts, uri, false) {
				w.emit(FileEvent{URI: uri, Operation: OpCreate, Timestamp: time.Now()})
			}
			return nil
		}
		if rel != "." && w.scan.Excluded(w.opts, uri, true) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) emit(event FileEvent) {
	select {
	case w.events <- event:
	default:
		count := w.dropped.Add(1)
		w.logger.Warn("watch_event_dropped",
			slog.String("uri", event.URI),
			slog.Uint64("total_dropped", count))
	}
}
