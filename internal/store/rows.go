package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DocumentRow is one indexed file.
type DocumentRow struct {
	URI         string
	ContentHash string
	LanguageID  string
	ChunkCount  int
	IndexedAt   time.Time
}

// ChunkRow is one persisted chunk of a document.
type ChunkRow struct {
	ID          string
	URI         string
	Ordinal     int
	Content     string
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
	ContentHash string
	LanguageID  string
}

// VectorRow is one persisted embedding.
type VectorRow struct {
	ChunkID    string
	URI        string
	Model      string
	Dimension  int
	Norm       float64
	ChunkHash  string
	LanguageID string
	Vector     []float32
}

// ReplaceDocument deletes any prior rows for doc.URI and inserts doc with its
// chunks in one transaction.
func (d *DB) ReplaceDocument(ctx context.Context, doc DocumentRow, chunks []ChunkRow) error {
	return d.write(ctx, func(tx *sql.Tx) error {
		if err := deleteDocument(ctx, tx, doc.URI); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", doc.URI, err)
		}

		indexedAt := doc.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (uri, content_hash, language_id, chunk_count, indexed_at)
			 VALUES (?, ?, ?, ?, ?)`,
			doc.URI, doc.ContentHash, doc.LanguageID, len(chunks), indexedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", doc.URI, err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO chunks
			 (id, uri, ordinal, content, start_line, start_column, end_line, end_column, content_hash, language_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare chunk statement: %w", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, c.ID, doc.URI, c.Ordinal, c.Content,
				c.StartLine, c.StartColumn, c.EndLine, c.EndColumn, c.ContentHash, c.LanguageID); err != nil {
				return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// DeleteDocument removes a document and its chunks. Missing uris are ignored.
func (d *DB) DeleteDocument(ctx context.Context, uri string) error {
	return d.write(ctx, func(tx *sql.Tx) error {
		return deleteDocument(ctx, tx, uri)
	})
}

func deleteDocument(ctx context.Context, tx *sql.Tx, uri string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE uri = ?`, uri); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE uri = ?`, uri)
	return err
}

// ClearDocuments removes every document and chunk.
func (d *DB) ClearDocuments(ctx context.Context) error {
	return d.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM documents`)
		return err
	})
}

// Documents returns every document row ordered by uri.
func (d *DB) Documents(ctx context.Context) ([]DocumentRow, error) {
	var docs []DocumentRow
	err := d.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT uri, content_hash, language_id, chunk_count, indexed_at FROM documents ORDER BY uri`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				doc DocumentRow
				ts  int64
			)
			if err := rows.Scan(&doc.URI, &doc.ContentHash, &doc.LanguageID, &doc.ChunkCount, &ts); err != nil {
				return fmt.Errorf("failed to scan document: %w", err)
			}
			doc.IndexedAt = time.Unix(ts, 0)
			docs = append(docs, doc)
		}
		return rows.Err()
	})
	return docs, err
}

// EachChunk streams every chunk ordered by (uri, ordinal).
func (d *DB) EachChunk(ctx context.Context, fn func(ChunkRow) error) error {
	return d.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT id, uri, ordinal, content, start_line, start_column, end_line, end_column, content_hash, language_id
			 FROM chunks ORDER BY uri, ordinal`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c ChunkRow
			if err := rows.Scan(&c.ID, &c.URI, &c.Ordinal, &c.Content, &c.StartLine, &c.StartColumn,
				&c.EndLine, &c.EndColumn, &c.ContentHash, &c.LanguageID); err != nil {
				return fmt.Errorf("failed to scan chunk: %w", err)
			}
			if err := fn(c); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// UpsertVectors inserts or replaces vector rows.
func (d *DB) UpsertVectors(ctx context.Context, vectors []VectorRow) error {
	if len(vectors) == 0 {
		return nil
	}
	return d.write(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO vectors
			 (chunk_id, uri, model, dimension, norm, chunk_hash, language_id, vector)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare vector statement: %w", err)
		}
		defer stmt.Close()

		for _, v := range vectors {
			if _, err := stmt.ExecContext(ctx, v.ChunkID, v.URI, v.Model, len(v.Vector), v.Norm,
				v.ChunkHash, v.LanguageID, EncodeVector(v.Vector)); err != nil {
				return fmt.Errorf("failed to insert vector %s: %w", v.ChunkID, err)
			}
		}
		return nil
	})
}

// DeleteVectorsForURI removes every vector owned by uri.
func (d *DB) DeleteVectorsForURI(ctx context.Context, uri string) error {
	return d.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE uri = ?`, uri)
		return err
	})
}

// ClearVectors removes every vector.
func (d *DB) ClearVectors(ctx context.Context) error {
	return d.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM vectors`)
		return err
	})
}

// VectorPage returns up to limit vectors with chunk_id greater than after,
// ordered by chunk_id. An empty page means the end was reached.
func (d *DB) VectorPage(ctx context.Context, after string, limit int) ([]VectorRow, error) {
	var page []VectorRow
	err := d.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT chunk_id, uri, model, dimension, norm, chunk_hash, language_id, vector
			 FROM vectors WHERE chunk_id > ? ORDER BY chunk_id LIMIT ?`, after, limit)
		if err != nil {
			return err
		}
		page, err = scanVectors(rows)
		return err
	})
	return page, err
}

// VectorsByHash returns every vector whose chunk hash matches, ordered by
// chunk_id.
func (d *DB) VectorsByHash(ctx context.Context, chunkHash string) ([]VectorRow, error) {
	var out []VectorRow
	err := d.read(func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT chunk_id, uri, model, dimension, norm, chunk_hash, language_id, vector
			 FROM vectors WHERE chunk_hash = ? ORDER BY chunk_id`, chunkHash)
		if err != nil {
			return err
		}
		out, err = scanVectors(rows)
		return err
	})
	return out, err
}

func scanVectors(rows *sql.Rows) ([]VectorRow, error) {
	defer rows.Close()

	var out []VectorRow
	for rows.Next() {
		var (
			v    VectorRow
			blob []byte
		)
		if err := rows.Scan(&v.ChunkID, &v.URI, &v.Model, &v.Dimension, &v.Norm,
			&v.ChunkHash, &v.LanguageID, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		vec, err := DecodeVector(blob, v.Dimension)
		if err != nil {
			return nil, fmt.Errorf("vector %s: %w", v.ChunkID, err)
		}
		v.Vector = vec
		out = append(out, v)
	}
	return out, rows.Err()
}

// Counts holds aggregate row counts.
type Counts struct {
	Documents int
	Chunks    int
	Vectors   int
}

// Counts returns aggregate row counts for diagnostics.
func (d *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := d.read(func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM documents),
			        (SELECT COUNT(*) FROM chunks),
			        (SELECT COUNT(*) FROM vectors)`).Scan(&c.Documents, &c.Chunks, &c.Vectors)
	})
	return c, err
}

// EncodeVector serializes v as little-endian float32.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector parses a little-endian float32 buffer of the given dimension.
func DecodeVector(buf []byte, dimension int) ([]float32, error) {
	if len(buf) != 4*dimension {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d", len(buf), 4*dimension)
	}
	v := make([]float32, dimension)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
