package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/chunk"
	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/embed"
	"github.com/Aman-CERP/amanidx/internal/scanner"
)

// sampleFiles is a small workspace with distinct vocabulary per file.
var sampleFiles = map[string]string{
	"main.go":         "package main\n\nfunc frobnicate() int {\n\treturn 42\n}\n",
	"util/strings.go": "package util\n\n// Reverse flips a string.\nfunc Reverse(s string) string {\n\treturn s\n}\n",
	"docs/guide.md":   "# Guide\n\nThe quux widget spins when asked.\n",
}

func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		writeFile(t, root, name, content)
	}
	return root
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Indexing.MaxConcurrentJobs = 1
	cfg.Indexing.DebounceMS = 20
	cfg.Embeddings.Runtime = embed.RuntimeHash
	return cfg
}

func hashGateway() *embed.Gateway {
	return newGateway(embed.NewHashProvider())
}

func newGateway(providers ...embed.Provider) *embed.Gateway {
	return embed.NewGateway(embed.NewStrategy(nil, providers...), embed.NewCache(64), embed.Options{}, nil)
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, gw *embed.Gateway, mutate ...func(*Options)) *Orchestrator {
	t.Helper()
	scan, err := scanner.New()
	require.NoError(t, err)

	opts := Options{
		Config:  cfg,
		Gateway: gw,
		Chunker: chunk.New(chunk.NewLanguageRegistry(), chunk.Options{WindowLines: 50}, nil),
		Scanner: scan,
	}
	for _, m := range mutate {
		m(&opts)
	}
	o, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func hitURIs(hits []*Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.URI
	}
	return out
}

// failingProvider rejects every batch.
type failingProvider struct{}

func (failingProvider) Kind() embed.ProviderKind { return embed.KindHash }
func (failingProvider) Model() string            { return "broken" }
func (failingProvider) Dimensions() int          { return 8 }
func (failingProvider) Close() error             { return nil }

func (failingProvider) EmbedBatch(context.Context, []string, embed.InputType) ([][]float32, error) {
	return nil, errors.New("provider exploded")
}

// flakyProvider fails its first failures batches, then answers like the hash
// provider under its own model name.
type flakyProvider struct {
	embed.HashProvider
	mu       sync.Mutex
	failures int
}

func (p *flakyProvider) Model() string { return "flaky-primary" }

func (p *flakyProvider) EmbedBatch(ctx context.Context, texts []string, inputType embed.InputType) ([][]float32, error) {
	p.mu.Lock()
	fail := p.failures > 0
	if fail {
		p.failures--
	}
	p.mu.Unlock()
	if fail {
		return nil, errors.New("transient outage")
	}
	return p.HashProvider.EmbedBatch(ctx, texts, inputType)
}

// slowProvider signals started on its first batch, then takes delay to
// answer regardless of ctx.
type slowProvider struct {
	embed.HashProvider
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func newSlowProvider(delay time.Duration) *slowProvider {
	return &slowProvider{delay: delay, started: make(chan struct{})}
}

func (p *slowProvider) EmbedBatch(ctx context.Context, texts []string, inputType embed.InputType) ([][]float32, error) {
	p.once.Do(func() { close(p.started) })
	time.Sleep(p.delay)
	return p.HashProvider.EmbedBatch(ctx, texts, inputType)
}
