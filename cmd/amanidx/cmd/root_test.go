package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"index", "rebuild", "refresh", "search", "status", "delete", "watch", "doctor", "init", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"debug", "profile-cpu", "profile-mem", "profile-trace"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCmd_ProfilesAroundCommand(t *testing.T) {
	// Given: a heap profile request
	heap := filepath.Join(t.TempDir(), "heap.prof")

	// When: running a cheap subcommand
	_, err := run(t, "version", "--short", "--profile-mem", heap)

	// Then: the profile is written after the command finishes
	require.NoError(t, err)
	assert.FileExists(t, heap)
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := run(t, "frobnicate")

	assert.Error(t, err)
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()

	got, err := resolveRoot([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveRoot([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
