package index

import (
	"context"
	"log/slog"
	"os"

	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/remote"
	"github.com/Aman-CERP/amanidx/internal/store"
	"github.com/Aman-CERP/amanidx/internal/vectorstore"
)

// VectorOpener opens the vector index of one workspace. dimension is the
// vector length the workspace uses, or that of the active embedding
// provider when nothing has been stored yet.
type VectorOpener func(ctx context.Context, workspace string, db *store.DB, dimension int) (vectorstore.Index, error)

// LocalVectors keeps vectors in the workspace database and loads them into
// memory on open.
func LocalVectors(pageSize int, logger *slog.Logger) VectorOpener {
	return func(ctx context.Context, _ string, db *store.DB, _ int) (vectorstore.Index, error) {
		s, err := vectorstore.Open(ctx, db, vectorstore.Options{PageSize: pageSize}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// StreamedVectors keeps vectors in the workspace database only. Every query
// reads them back one page at a time.
func StreamedVectors(pageSize int, logger *slog.Logger) VectorOpener {
	return func(ctx context.Context, _ string, db *store.DB, _ int) (vectorstore.Index, error) {
		s, err := vectorstore.OpenPaged(ctx, db, vectorstore.Options{PageSize: pageSize}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// RemoteVectors keeps vectors in the shared Qdrant collection, partitioned
// by the namespace of (userID, workspace).
func RemoteVectors(cfg config.QdrantConfig, userID string, logger *slog.Logger) VectorOpener {
	return func(ctx context.Context, workspace string, _ *store.DB, dimension int) (vectorstore.Index, error) {
		s, err := remote.Dial(ctx, remote.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			APIKey:     os.Getenv(cfg.APIKeyEnv),
			UseTLS:     cfg.UseTLS,
			Collection: cfg.Collection,
			Dimension:  dimension,
		}, userID, workspace, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
