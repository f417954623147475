package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/configs"
	"github.com/Aman-CERP/amanidx/internal/config"
)

func TestInitCmd_WritesLoadableProjectConfig(t *testing.T) {
	// Given: a fresh workspace
	ws, _ := isolate(t)

	// When: running init
	out, err := run(t, "init", ws)

	// Then: the template is written and loads with default values
	require.NoError(t, err)
	path := filepath.Join(ws, config.ProjectConfigFile)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := config.Load(ws)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Contains(t, cfg.Indexing.Exclude, ".git/")
}

func TestInitCmd_KeepsExistingUnlessForced(t *testing.T) {
	ws, _ := isolate(t)
	path := filepath.Join(ws, config.ProjectConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	out, err := run(t, "init", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, _ := os.ReadFile(path)
	assert.Equal(t, "version: 1\n", string(data))

	_, err = run(t, "init", ws, "--force")
	require.NoError(t, err)
	data, _ = os.ReadFile(path)
	assert.Equal(t, configs.ProjectConfigTemplate, string(data))
}

func TestInitCmd_UserTemplate(t *testing.T) {
	isolate(t)

	_, err := run(t, "init", "--user")

	require.NoError(t, err)
	data, err := os.ReadFile(config.GetUserConfigPath())
	require.NoError(t, err)
	assert.Equal(t, configs.UserConfigTemplate, string(data))

	// The user template must load cleanly as well.
	_, err = config.Load(t.TempDir())
	assert.NoError(t, err)
}
