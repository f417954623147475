package index

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/amanidx/internal/watcher"
)

// Notify implements Service. Events are coalesced per workspace for the
// configured debounce window, then handed to RefreshPaths on a background
// context owned by the orchestrator. The workspace reads as stale meanwhile.
func (o *Orchestrator) Notify(root string, events []watcher.FileEvent) {
	if len(events) == 0 {
		return
	}
	ws, err := o.workspace(root)
	if err != nil {
		o.logger.Warn("index_notify_failed", slog.String("workspace", root), slog.String("error", err.Error()))
		return
	}

	ws.debounceMu.Lock()
	if ws.debouncer == nil {
		ws.debouncer = watcher.NewDebouncer(o.cfg.Debounce(), func(batch []watcher.FileEvent) {
			o.flush(ws, batch)
		})
	}
	d := ws.debouncer
	ws.debounceMu.Unlock()

	for _, ev := range events {
		d.Add(ev)
	}
	ws.status.setPending(d.Pending())
	ws.status.markStale()
}

// flush refreshes one debounced batch. A .gitignore change widens the batch
// to every file whose ignored state may have flipped.
func (o *Orchestrator) flush(ws *workspace, events []watcher.FileEvent) {
	ctx := o.ctx
	ws.status.setPending(0)

	uris := make([]string, 0, len(events))
	reconcile := false
	for _, ev := range events {
		if ev.Operation == watcher.OpIgnoreChange {
			reconcile = true
		}
		uris = append(uris, ev.URI)
	}

	if err := ws.lock.Lock(ctx); err != nil {
		return
	}
	defer ws.lock.Unlock()

	if reconcile {
		extra, err := o.reconcileSet(ctx, ws)
		if err != nil {
			o.logger.Warn("index_reconcile_failed", slog.String("workspace", ws.root), slog.String("error", err.Error()))
		}
		uris = append(uris, extra...)
	}

	o.logger.Debug("index_refresh_debounced",
		slog.String("workspace", ws.root),
		slog.Int("paths", len(uris)),
		slog.Bool("reconcile", reconcile))
	if err := o.refresh(ctx, ws, dedupe(uris)); err != nil {
		o.logger.Warn("index_refresh_failed", slog.String("workspace", ws.root), slog.String("error", err.Error()))
	}
}

// reconcileSet returns the files that are indexed but no longer scanned, and
// scanned but not indexed.
func (o *Orchestrator) reconcileSet(ctx context.Context, ws *workspace) ([]string, error) {
	if _, err := o.open(ctx, ws, true); err != nil {
		return nil, err
	}
	o.scanner.InvalidateIgnoreCache()
	files, err := o.scanner.Scan(ctx, o.scanOptions(ws.root))
	if err != nil {
		return nil, err
	}

	lex, _, _ := ws.stores()
	indexed := make(map[string]bool)
	for _, uri := range lex.URIs() {
		indexed[uri] = true
	}

	var out []string
	for _, f := range files {
		if !indexed[f.URI] {
			out = append(out, f.URI)
		}
		delete(indexed, f.URI)
	}
	for uri := range indexed {
		out = append(out, uri)
	}
	return out, nil
}

func dedupe(uris []string) []string {
	seen := make(map[string]bool, len(uris))
	out := uris[:0]
	for _, u := range uris {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
