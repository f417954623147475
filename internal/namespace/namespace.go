// Package namespace derives the partition keys that keep users and
// workspaces apart in a shared vector backend.
//
// A namespace is "{userID}::{workspaceHash}". It is recomputed on demand and
// never stored. Renaming or moving a workspace root changes its hash, so the
// vectors written under the old namespace are orphaned rather than migrated.
package namespace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Separator joins user id and workspace hash.
const Separator = "::"

// machineIDFile holds the machine-local user id inside the data directory.
const machineIDFile = "machine-id"

// vectorIDSpace is the UUIDv5 namespace for point ids.
var vectorIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/Aman-CERP/amanidx/vector"))

// Options selects where the user id comes from.
type Options struct {
	// AccountID is an externally provided identity. It wins when set.
	AccountID string
	// DataDir holds the persisted machine id.
	DataDir string
}

// UserID returns the external account id when present, otherwise a
// machine-local id created once and persisted under DataDir.
func UserID(opts Options) (string, error) {
	if id := strings.TrimSpace(opts.AccountID); id != "" {
		return id, nil
	}
	if opts.DataDir == "" {
		return "", fmt.Errorf("namespace: data directory required for machine id")
	}

	path := filepath.Join(opts.DataDir, machineIDFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("namespace: read machine id: %w", err)
	}

	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("namespace: create data dir: %w", err)
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("namespace: write machine id: %w", err)
	}
	return id, nil
}

// WorkspaceHash returns the first 16 hex chars of sha256 over the cleaned
// absolute workspace path.
func WorkspaceHash(path string) string {
	sum := sha256.Sum256([]byte(canonical(path)))
	return hex.EncodeToString(sum[:])[:16]
}

// Namespace returns "{userID}::{workspaceHash(path)}".
func Namespace(userID, path string) string {
	return userID + Separator + WorkspaceHash(path)
}

// VectorID returns a deterministic UUIDv5 for one chunk of one file in a
// workspace, usable as a Qdrant point id.
func VectorID(path, filePath string, chunkIndex int) string {
	name := canonical(path) + "\x00" + filepath.ToSlash(filePath) + "\x00" + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(vectorIDSpace, []byte(name)).String()
}

func canonical(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Clean(path)
}
