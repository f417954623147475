package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate points configuration, data and logs at temp directories and
// selects the offline hash embedder.
func isolate(t *testing.T) (workspace, dataDir string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dataDir = t.TempDir()
	t.Setenv("AMANIDX_DATA_DIR", dataDir)
	t.Setenv("AMANIDX_EMBEDDINGS_RUNTIME", "hash")
	t.Setenv("AMANIDX_DEBOUNCE_MS", "20")
	t.Setenv("NO_COLOR", "1")

	workspace = t.TempDir()
	for name, content := range map[string]string{
		"main.go":         "package main\n\nfunc frobnicate() int {\n\treturn 42\n}\n",
		"util/strings.go": "package util\n\n// Reverse flips s.\nfunc Reverse(s string) string {\n\treturn s\n}\n",
		"docs/guide.md":   "# Guide\n\nThe quux widget spins when asked.\n",
	} {
		path := filepath.Join(workspace, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return workspace, dataDir
}

// run executes the root command with args and returns its standard output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}
