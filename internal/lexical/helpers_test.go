package lexical

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/store"
)

// stampFutureSchema marks the database at path as written by a newer binary.
func stampFutureSchema(t *testing.T, path string) {
	t.Helper()
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = raw.Close() }()
	_, err = raw.Exec(`INSERT INTO schema_version (version) VALUES (?)`, store.SchemaVersion+1)
	require.NoError(t, err)
}
