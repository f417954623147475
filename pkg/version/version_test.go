package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString_ContainsBuildFields(t *testing.T) {
	s := String()

	assert.Contains(t, s, "amanidx "+Version)
	assert.Contains(t, s, "commit:")
	assert.Contains(t, s, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestShort_ReturnsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfo_UsesLdflagValues(t *testing.T) {
	// Given: values injected as ldflags would
	oldCommit, oldDate := Commit, Date
	t.Cleanup(func() { Commit, Date = oldCommit, oldDate })
	Commit, Date = "abc1234", "2026-01-02T03:04:05Z"

	// When: reading the build info
	info := GetInfo()

	// Then: ldflags win over the embedded VCS stamp
	assert.Equal(t, "abc1234", info.Commit)
	assert.Equal(t, "2026-01-02T03:04:05Z", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestGetInfo_IsJSONSerializable(t *testing.T) {
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(data, &parsed))
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, parsed, key)
	}
}
