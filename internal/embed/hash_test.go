package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashProvider_Identity(t *testing.T) {
	p := NewHashProvider()

	assert.Equal(t, KindHash, p.Kind())
	assert.Equal(t, "hash-384", p.Model())
	assert.Equal(t, 384, p.Dimensions())
	assert.False(t, p.Kind().Remote())
}

func TestHashProvider_DeterministicUnitVectors(t *testing.T) {
	p := NewHashProvider()
	texts := []string{"func parseConfig(path string) error", "class UserRepository"}

	first, err := p.EmbedBatch(context.Background(), texts, InputDocument)
	require.NoError(t, err)
	second, err := p.EmbedBatch(context.Background(), texts, InputQuery)
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	for _, v := range first {
		assert.Len(t, v, HashDimensions)
		assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-5)
	}
}

func TestHashProvider_BlankTextIsZeroVector(t *testing.T) {
	vecs, err := NewHashProvider().EmbedBatch(context.Background(), []string{"  \n\t"}, InputDocument)

	require.NoError(t, err)
	assert.Len(t, vecs[0], HashDimensions)
	assert.Zero(t, vectorMagnitude(vecs[0]))
}

func TestHashProvider_SimilarTextScoresHigher(t *testing.T) {
	// Given: a query and two candidates, one sharing identifiers with it
	p := NewHashProvider()
	vecs, err := p.EmbedBatch(context.Background(), []string{
		"parse the user config file",
		"func parseUserConfig(file string) (*UserConfig, error)",
		"SELECT count(*) FROM orders WHERE total > 100",
	}, InputDocument)
	require.NoError(t, err)

	// Then: the related snippet is closer than the unrelated one
	related := cosineSimilarity(vecs[0], vecs[1])
	unrelated := cosineSimilarity(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}

func TestHashProvider_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHashProvider().EmbedBatch(ctx, []string{"a"}, InputDocument)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitCodeToken(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"parseConfig", []string{"parse", "Config"}},
		{"HTTPServer", []string{"HTTP", "Server"}},
		{"user_id_map", []string{"user", "id", "map"}},
		{"getHTTP_response", []string{"get", "HTTP", "response"}},
		{"plain", []string{"plain"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitCodeToken(tt.in))
		})
	}
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"abc", "bcd"}, extractNgrams("abcd", 3))
	assert.Equal(t, []string{}, extractNgrams("ab", 3))
	assert.Equal(t, []string{"äöü"}, extractNgrams("äöü", 3))
}
