package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanidx/internal/chunk"
	"github.com/Aman-CERP/amanidx/internal/embed"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/scanner"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/vectorstore"
)

// cancelledMessage is recorded in IndexStatus when a run is interrupted.
const cancelledMessage = "indexing cancelled"

// build runs a full index. The caller holds the workspace write lock.
func (o *Orchestrator) build(ctx context.Context, ws *workspace) error {
	start := time.Now()

	if _, err := o.open(ctx, ws, true); err != nil {
		ws.status.finish(StateError, err.Error(), false, time.Time{})
		return err
	}
	lex, vec, db := ws.stores()
	if db.ReadOnly() {
		err := readOnlyError()
		ws.status.markDegraded(err.Message)
		return err
	}

	ws.status.begin()
	o.logger.Info("index_build_started", slog.String("workspace", ws.root))

	files, err := o.scanner.Scan(ctx, o.scanOptions(ws.root))
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(ctx, ws)
		}
		ws.status.finish(StateError, err.Error(), false, time.Time{})
		return err
	}

	if err := lex.Clear(ctx); err != nil {
		ws.status.finish(StateError, err.Error(), false, time.Time{})
		return fmt.Errorf("failed to clear lexical index: %w", err)
	}
	if err := vec.Clear(ctx); err != nil {
		ws.status.finish(StateError, err.Error(), false, time.Time{})
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	ws.status.setEmbedding("", 0)
	ws.status.setTotalFiles(len(files))

	o.runJobs(ctx, ws, len(files), func(i int) error {
		return o.indexFile(ctx, ws, files[i])
	}, func(i int) string { return files[i].URI })

	if ctx.Err() != nil {
		return o.cancelled(ctx, ws)
	}
	return o.complete(ctx, ws, start)
}

// refresh re-indexes uris. The caller holds the workspace write lock.
func (o *Orchestrator) refresh(ctx context.Context, ws *workspace, uris []string) error {
	start := time.Now()

	if _, err := o.open(ctx, ws, true); err != nil {
		ws.status.finish(StateError, err.Error(), false, time.Time{})
		return err
	}
	lex, vec, db := ws.stores()
	if db.ReadOnly() {
		err := readOnlyError()
		ws.status.markDegraded(err.Message)
		return err
	}

	ws.status.beginRefresh()
	opts := o.scanOptions(ws.root)

	o.runJobs(ctx, ws, len(uris), func(i int) error {
		uri := uris[i]
		f, ok, err := o.scanner.Stat(opts, uri)
		switch {
		case errors.Is(err, fs.ErrNotExist), err == nil && !ok:
			return o.removeFile(ctx, ws, uri)
		case err != nil:
			return err
		default:
			return o.indexFile(ctx, ws, f)
		}
	}, func(i int) string { return uris[i] })

	stats := lex.Stats()
	embedded, err := vec.Count(ctx)
	if err != nil {
		o.logger.Warn("vector_count_failed", slog.String("workspace", ws.root), slog.String("error", err.Error()))
	}
	ws.status.setCounts(stats.Documents, stats.Chunks, embedded)

	if ctx.Err() != nil {
		return o.cancelled(ctx, ws)
	}
	return o.complete(ctx, ws, start)
}

// runJobs runs job(0..n-1) with at most MaxConcurrentJobs in flight. Jobs
// wait while the workspace is paused. A failed job is counted and logged,
// and the rest keep going.
func (o *Orchestrator) runJobs(ctx context.Context, ws *workspace, n int, job func(int) error, name func(int) string) {
	limit := o.cfg.Indexing.MaxConcurrentJobs
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ws.gate.wait(ctx); err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			if err := job(i); err != nil && ctx.Err() == nil {
				o.logger.Warn("index_file_failed",
					slog.String("workspace", ws.root),
					slog.String("uri", name(i)),
					slog.String("error", err.Error()))
				ws.status.fileFailed(name(i) + ": " + err.Error())
			}
			o.reportProgress(ws)
			return nil
		})
	}
	_ = g.Wait()
}

// indexFile chunks one file and replaces its entries in both stores. A
// cancelled embedding leaves the file untouched.
func (o *Orchestrator) indexFile(ctx context.Context, ws *workspace, f *scanner.File) error {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return o.removeFile(ctx, ws, f.URI)
		}
		return amerrors.New(amerrors.ErrCodeFilePermission, "failed to read "+f.URI, err).WithDetail("uri", f.URI)
	}

	chunks, err := o.chunker.Chunk(ctx, &chunk.FileInput{URI: f.URI, Content: content})
	if err != nil {
		return amerrors.New(amerrors.ErrCodeChunkingFailed, "failed to chunk "+f.URI, err).WithDetail("uri", f.URI)
	}
	languageID := ""
	if len(chunks) > 0 {
		languageID = chunks[0].LanguageID
	}

	records, embedErr := o.embedChunks(ctx, ws, chunks)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	lex, vec, _ := ws.stores()
	if lex == nil {
		return errServiceClosed()
	}
	if err := lex.IndexDocument(ctx, f.URI, languageID, chunks); err != nil {
		return amerrors.New(amerrors.ErrCodeIndexFailed, "failed to index "+f.URI, err).WithDetail("uri", f.URI)
	}
	if err := vec.RemoveForURI(ctx, f.URI); err != nil {
		embedErr = errors.Join(embedErr, err)
	}
	stored := 0
	if len(records) > 0 {
		if err := vec.Store(ctx, records); err != nil {
			embedErr = errors.Join(embedErr, err)
		} else {
			stored = len(records)
		}
	}

	ws.status.fileDone(len(chunks), stored)
	if embedErr != nil {
		o.logger.Warn("index_embedding_failed",
			slog.String("workspace", ws.root),
			slog.String("uri", f.URI),
			slog.String("error", embedErr.Error()))
		ws.status.warn(f.URI + ": " + embedErr.Error())
	}
	return nil
}

// embedChunks returns one record per non-blank chunk that could be
// embedded. Chunks whose content hash is already stored under the
// workspace's model reuse that vector.
func (o *Orchestrator) embedChunks(ctx context.Context, ws *workspace, chunks []*chunk.Chunk) ([]*vectorstore.Record, error) {
	_, vec, _ := ws.stores()
	if vec == nil {
		return nil, errServiceClosed()
	}
	model := ws.status.Snapshot().EmbeddingModel

	records := make([]*vectorstore.Record, 0, len(chunks))
	var pending []int
	for i, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		if model != "" {
			prior, err := vec.ByHash(ctx, c.ContentHash)
			if err == nil && len(prior) > 0 && prior[0].Model == model {
				records = append(records, newRecord(c, i, prior[0].Embedding, model))
				continue
			}
		}
		pending = append(pending, i)
	}

	batchSize := o.cfg.Indexing.BatchSize
	if batchSize < 1 {
		batchSize = embed.DefaultMaxBatchItems
	}
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		texts := make([]string, 0, end-start)
		for _, i := range pending[start:end] {
			texts = append(texts, chunks[i].Content)
		}

		vecs, used, err := o.embedBatch(ctx, ws, texts)
		if err != nil {
			return records, err
		}
		pinned, dim := ws.status.pinEmbedding(used, len(vecs[0]))
		if used != pinned || len(vecs[0]) != dim {
			return records, amerrors.New(amerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embedding model %s does not match index model %s", used, pinned), nil).
				WithDetail("index_model", pinned).
				WithDetail("model", used)
		}
		for j, i := range pending[start:end] {
			records = append(records, newRecord(chunks[i], i, vecs[j], used))
		}
	}
	return records, nil
}

// embedBatch embeds texts. Until the workspace has a pinned model, a batch
// served by an unsettled fallback is sent again so that a single primary
// failure cannot pin the fallback for the whole index. Each resend counts
// against the primary's breaker, so the loop ends once it opens.
func (o *Orchestrator) embedBatch(ctx context.Context, ws *workspace, texts []string) ([][]float32, string, error) {
	for {
		vecs, used, err := o.gateway.EmbedWithModel(ctx, texts, embed.InputDocument)
		if err != nil || ws.status.Snapshot().EmbeddingModel != "" || o.gateway.Settled(used) {
			return vecs, used, err
		}
		o.logger.Debug("embedding_fallback_unsettled",
			slog.String("workspace", ws.root),
			slog.String("model", used))
	}
}

func newRecord(c *chunk.Chunk, ordinal int, embedding []float32, model string) *vectorstore.Record {
	return &vectorstore.Record{
		ChunkID:    c.ID,
		URI:        c.URI,
		Ordinal:    ordinal,
		Embedding:  embedding,
		LanguageID: c.LanguageID,
		ChunkHash:  c.ContentHash,
		Model:      model,
	}
}

// removeFile drops uri from both stores.
func (o *Orchestrator) removeFile(ctx context.Context, ws *workspace, uri string) error {
	lex, vec, _ := ws.stores()
	if lex == nil {
		return errServiceClosed()
	}
	if err := lex.RemoveDocument(ctx, uri); err != nil {
		return err
	}
	if err := vec.RemoveForURI(ctx, uri); err != nil {
		return err
	}
	o.logger.Debug("index_file_removed", slog.String("workspace", ws.root), slog.String("uri", uri))
	return nil
}

// complete records the outcome of a finished run.
func (o *Orchestrator) complete(ctx context.Context, ws *workspace, start time.Time) error {
	lex, vec, _ := ws.stores()
	if lex == nil {
		return o.cancelled(ctx, ws)
	}
	st, partial := ws.status.outcome()
	now := time.Now()
	o.persistState(ctx, ws, st, now)

	state, msg := StateReady, ""
	switch {
	case st.IndexedFiles == 0 && st.FailedFiles > 0:
		state, msg = StateError, st.ErrorMessage
	case partial:
		state, msg = StateDegraded, st.ErrorMessage
	case o.gateway.Degraded():
		state, msg = StateDegraded, "embedding fallback in use: "+o.gateway.ActiveModel()
	case lex.Degraded() || vectorsDegraded(vec):
		state, msg = StateDegraded, "index persistence failed; results will not survive a restart"
	}
	ws.status.finish(state, msg, false, now)

	o.logger.Info("index_run_completed",
		slog.String("workspace", ws.root),
		slog.String("state", string(state)),
		slog.Int("files", st.IndexedFiles),
		slog.Int("failed", st.FailedFiles),
		slog.Int("chunks", st.TotalChunks),
		slog.Int("embedded", st.EmbeddedChunks),
		slog.Duration("duration", time.Since(start)))

	if state == StateError {
		return amerrors.New(amerrors.ErrCodeIndexFailed, msg, nil).WithDetail("workspace", ws.root)
	}
	return nil
}

// cancelled records an interrupted run. Work already done stays queryable.
func (o *Orchestrator) cancelled(ctx context.Context, ws *workspace) error {
	st, _ := ws.status.outcome()
	state := StateError
	var at time.Time
	if st.IndexedFiles > 0 {
		state = StateDegraded
		at = time.Now()
		o.persistState(context.WithoutCancel(ctx), ws, st, at)
	}
	ws.status.finish(state, cancelledMessage, true, at)

	o.logger.Warn("index_run_cancelled",
		slog.String("workspace", ws.root),
		slog.Int("files", st.IndexedFiles),
		slog.Int("total", st.TotalFiles))
	return amerrors.New(amerrors.ErrCodeCancelled, cancelledMessage, ctx.Err()).WithDetail("workspace", ws.root)
}

// persistState stores the embedding model, dimension and time of a run.
func (o *Orchestrator) persistState(ctx context.Context, ws *workspace, st IndexStatus, at time.Time) {
	_, _, db := ws.stores()
	if db == nil {
		return
	}
	values := map[string]string{store.StateKeyLastIndexed: at.Format(time.RFC3339Nano)}
	if st.EmbeddingModel != "" {
		values[store.StateKeyEmbeddingModel] = st.EmbeddingModel
		values[store.StateKeyEmbeddingDimension] = strconv.Itoa(st.Dimension)
	}
	for key, value := range values {
		if err := db.SetState(ctx, key, value); err != nil {
			o.logger.Warn("index_state_write_failed",
				slog.String("workspace", ws.root),
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}
}

func (o *Orchestrator) reportProgress(ws *workspace) {
	st := ws.status.Snapshot()
	o.progress.Do(func() {
		o.logger.Info("index_progress",
			slog.String("workspace", ws.root),
			slog.Int("files", st.IndexedFiles+st.FailedFiles),
			slog.Int("total", st.TotalFiles),
			slog.Int("chunks", st.TotalChunks))
	})
	if o.onProgress != nil {
		o.onProgress(st)
	}
}
