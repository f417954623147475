package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileName   = ".write.lock"
	lockRetryDelay = 50 * time.Millisecond
)

// writeLock serializes writers to one workspace: a mutex inside the process
// and a file lock on the workspace data directory across processes.
type writeLock struct {
	mu    sync.Mutex
	flock *flock.Flock
	path  string
}

func newWriteLock(dir string) *writeLock {
	path := filepath.Join(dir, lockFileName)
	return &writeLock{flock: flock.New(path), path: path}
}

// Lock blocks until both locks are held or ctx is done.
func (l *writeLock) Lock(ctx context.Context) error {
	l.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	locked, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		l.mu.Unlock()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	return nil
}

// Unlock releases both locks.
func (l *writeLock) Unlock() {
	_ = l.flock.Unlock()
	l.mu.Unlock()
}

// lockLocal takes only the in-process half, enough to wait out jobs of this
// process.
func (l *writeLock) lockLocal() {
	l.mu.Lock()
}

func (l *writeLock) unlockLocal() {
	l.mu.Unlock()
}

// gate holds new jobs while a workspace is paused.
type gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		g.paused = true
		g.resume = make(chan struct{})
	}
}

func (g *gate) unpause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		g.paused = false
		close(g.resume)
	}
}

// wait returns once the gate is open, or with ctx's error.
func (g *gate) wait(ctx context.Context) error {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return nil
	}
	ch := g.resume
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
