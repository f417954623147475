// Package remote implements vectorstore.Index on a shared Qdrant collection.
// Every point carries its namespace in the payload and every read and delete
// filters on it, so workspaces and users never see each other's vectors.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/namespace"
	"github.com/Aman-CERP/amanidx/internal/vectorstore"
)

// Payload fields.
const (
	fieldNamespace  = "namespace"
	fieldChunkID    = "chunk_id"
	fieldURI        = "uri"
	fieldChunkHash  = "chunk_hash"
	fieldLanguageID = "language_id"
	fieldModel      = "model"
	fieldOrdinal    = "ordinal"
)

const upsertBatchSize = 100

// pointsClient is the subset of *qdrant.Client used here.
type pointsClient interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Close() error
}

// Config describes the Qdrant connection.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	// Dimension of the collection's vectors. Required to create it.
	Dimension int
}

// Store is a namespaced view of a Qdrant collection.
type Store struct {
	client     pointsClient
	collection string
	dimension  int
	workspace  string
	ns         string
	retry      amerrors.RetryConfig
	logger     *slog.Logger
}

var _ vectorstore.Index = (*Store)(nil)

// Dial connects to Qdrant, ensures the collection exists, and returns a
// store scoped to the namespace of (userID, workspace).
func Dial(ctx context.Context, cfg Config, userID, workspace string, logger *slog.Logger) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeProviderUnavailable, "failed to create qdrant client", err).
			WithDetail("host", cfg.Host)
	}

	s := newStore(client, cfg, userID, workspace, logger)
	if err := s.EnsureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func newStore(client pointsClient, cfg Config, userID, workspace string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retry := amerrors.DefaultRetryConfig()
	retry.MaxAttempts = 3
	return &Store{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		workspace:  workspace,
		ns:         namespace.Namespace(userID, workspace),
		retry:      retry,
		logger:     logger,
	}
}

// Namespace returns the partition key this store reads and writes.
func (s *Store) Namespace() string { return s.ns }

// EnsureCollection creates the collection and its payload indexes when
// missing. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return unavailable("failed to check collection", err)
	}
	if exists {
		return nil
	}
	if s.dimension <= 0 {
		return amerrors.New(amerrors.ErrCodeConfigInvalid,
			"vector dimension required to create qdrant collection", nil).
			WithDetail("collection", s.collection)
	}

	if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return unavailable("failed to create collection", err)
	}

	for _, field := range []string{fieldNamespace, fieldURI, fieldChunkHash} {
		if _, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			return unavailable(fmt.Sprintf("failed to create index for field %s", field), err)
		}
	}

	s.logger.Info("qdrant_collection_created",
		slog.String("collection", s.collection),
		slog.Int("dimension", s.dimension))
	return nil
}

// Store upserts records in batches, retrying transient failures.
func (s *Store) Store(ctx context.Context, records []*vectorstore.Record) error {
	for i := 0; i < len(records); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(records))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for _, r := range records[i:end] {
			if s.dimension > 0 && len(r.Embedding) != s.dimension {
				return amerrors.New(amerrors.ErrCodeDimensionMismatch,
					fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", s.dimension, len(r.Embedding)), nil).
					WithDetail("chunk_id", r.ChunkID)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(s.pointID(r)),
				Vectors: qdrant.NewVectors(r.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					fieldNamespace:  s.ns,
					fieldChunkID:    r.ChunkID,
					fieldURI:        r.URI,
					fieldChunkHash:  r.ChunkHash,
					fieldLanguageID: r.LanguageID,
					fieldModel:      r.Model,
					fieldOrdinal:    int64(r.Ordinal),
				}),
			})
		}

		err := s.withRetry(ctx, func() error {
			_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: s.collection,
				Points:         points,
				Wait:           qdrant.PtrOf(true),
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// RemoveForURI deletes every point of uri in this namespace.
func (s *Store) RemoveForURI(ctx context.Context, uri string) error {
	return s.deleteWhere(ctx, s.filter(qdrant.NewMatch(fieldURI, uri)))
}

// Clear deletes every point in this namespace. Other namespaces are untouched.
func (s *Store) Clear(ctx context.Context) error {
	return s.deleteWhere(ctx, s.filter())
}

func (s *Store) deleteWhere(ctx context.Context, filter *qdrant.Filter) error {
	return s.withRetry(ctx, func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points:         qdrant.NewPointsSelectorFilter(filter),
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
}

// Nearest runs a cosine query restricted to this namespace.
func (s *Store) Nearest(ctx context.Context, query []float32, k, offset int) ([]*vectorstore.Hit, error) {
	if k <= 0 {
		return []*vectorstore.Hit{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         s.filter(),
		Limit:          qdrant.PtrOf(uint64(k)),
		Offset:         qdrant.PtrOf(uint64(offset)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, unavailable("failed to query qdrant", err)
	}

	hits := make([]*vectorstore.Hit, 0, len(results))
	for _, r := range results {
		p := r.GetPayload()
		hits = append(hits, &vectorstore.Hit{
			ChunkID:    p[fieldChunkID].GetStringValue(),
			URI:        p[fieldURI].GetStringValue(),
			Score:      float64(r.GetScore()),
			LanguageID: p[fieldLanguageID].GetStringValue(),
			ChunkHash:  p[fieldChunkHash].GetStringValue(),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	return hits, nil
}

// ByHash scrolls every point of this namespace with the given chunk hash.
func (s *Store) ByHash(ctx context.Context, chunkHash string) ([]*vectorstore.Record, error) {
	var (
		out    []*vectorstore.Record
		offset *qdrant.PointId
	)
	const pageSize = 100

	for {
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         s.filter(qdrant.NewMatch(fieldChunkHash, chunkHash)),
			Limit:          qdrant.PtrOf(uint32(pageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, unavailable("failed to scroll qdrant", err)
		}

		for _, pt := range points {
			p := pt.GetPayload()
			out = append(out, &vectorstore.Record{
				ChunkID:    p[fieldChunkID].GetStringValue(),
				URI:        p[fieldURI].GetStringValue(),
				Ordinal:    int(p[fieldOrdinal].GetIntegerValue()),
				Embedding:  denseData(pt.GetVectors().GetVector()),
				LanguageID: p[fieldLanguageID].GetStringValue(),
				ChunkHash:  p[fieldChunkHash].GetStringValue(),
				Model:      p[fieldModel].GetStringValue(),
			})
		}

		if len(points) < pageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out, nil
}

// Count returns the number of points in this namespace.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         s.filter(),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, unavailable("failed to count qdrant points", err)
	}
	return int(n), nil
}

// Close closes the client connection.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// pointID scopes the workspace-level vector id to this namespace so two users
// indexing the same path never overwrite each other's points.
func (s *Store) pointID(r *vectorstore.Record) string {
	base := uuid.MustParse(namespace.VectorID(s.workspace, r.URI, r.Ordinal))
	return uuid.NewSHA1(base, []byte(s.ns)).String()
}

func (s *Store) filter(extra ...*qdrant.Condition) *qdrant.Filter {
	must := append([]*qdrant.Condition{qdrant.NewMatch(fieldNamespace, s.ns)}, extra...)
	return &qdrant.Filter{Must: must}
}

func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	err := backoff.RetryNotify(fn, s.retry.BackOff(ctx), func(err error, wait time.Duration) {
		s.logger.Warn("qdrant_retry",
			slog.String("collection", s.collection),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	})
	if err != nil {
		return unavailable("qdrant request failed", err)
	}
	return nil
}

func unavailable(msg string, err error) *amerrors.IndexError {
	return amerrors.New(amerrors.ErrCodeProviderUnavailable, msg, err)
}

// denseData reads a dense vector from the Dense field, falling back to the
// flat Data field that older servers fill.
func denseData(v *qdrant.VectorOutput) []float32 {
	if data := v.GetDense().GetData(); len(data) > 0 {
		return data
	}
	return v.GetData()
}
