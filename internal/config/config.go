package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectConfigFile is the per-workspace configuration file name.
const ProjectConfigFile = ".amanidx.yaml"

// Config represents the complete amanidx configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Identity   IdentityConfig   `yaml:"identity" json:"identity"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// IndexingConfig controls the indexing pipeline.
type IndexingConfig struct {
	// Enabled is the master feature flag. When false every index and search
	// operation returns neutral results.
	Enabled bool `yaml:"enabled" json:"enabled"`

	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" json:"max_concurrent_jobs"`

	// DebounceMS is the quiet period before coalesced file events are re-indexed.
	DebounceMS int `yaml:"debounce_ms" json:"debounce_ms"`

	// BatchSize is the number of chunks handed to the embedding gateway per call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// WindowLines is the line-window size used when syntax chunking does not apply.
	WindowLines int `yaml:"window_lines" json:"window_lines"`

	MaxFileSize      int64    `yaml:"max_file_size" json:"max_file_size"`
	RespectGitignore bool     `yaml:"respect_gitignore" json:"respect_gitignore"`
	Exclude          []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig controls the query path.
type SearchConfig struct {
	// Enabled toggles semantic (vector) search.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Lexical adds BM25 hits to the merged result set.
	Lexical bool `yaml:"lexical" json:"lexical"`

	TopK            int `yaml:"top_k" json:"top_k"`
	LexicalRowLimit int `yaml:"lexical_row_limit" json:"lexical_row_limit"`
	MaxResults      int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig selects and tunes the embedding runtime.
type EmbeddingsConfig struct {
	// Runtime is one of: hash, onnx, http, openai, auto. This build has no
	// ONNX runtime; onnx uses the hash provider with a warning.
	Runtime  string `yaml:"runtime" json:"runtime"`
	Model    string `yaml:"model" json:"model"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKeyEnv names the environment variable holding the provider key.
	APIKeyEnv  string `yaml:"api_key_env" json:"api_key_env"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`

	MaxBatchItems     int    `yaml:"max_batch_items" json:"max_batch_items"`
	MaxBatchTokens    int    `yaml:"max_batch_tokens" json:"max_batch_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxAttempts       int    `yaml:"max_attempts" json:"max_attempts"`
	Timeout           string `yaml:"timeout" json:"timeout"`
	CacheSize         int    `yaml:"cache_size" json:"cache_size"`
}

// StorageConfig selects where index data lives.
type StorageConfig struct {
	// Backend is "local" (SQLite per workspace) or "remote" (Qdrant vectors).
	Backend  string `yaml:"backend" json:"backend"`
	DataDir  string `yaml:"data_dir" json:"data_dir"`
	PageSize int    `yaml:"page_size" json:"page_size"`

	// StreamVectors keeps local vectors on disk only; each vector query
	// reads the database page by page instead of scanning memory.
	StreamVectors bool `yaml:"stream_vectors" json:"stream_vectors"`

	Qdrant QdrantConfig `yaml:"qdrant" json:"qdrant"`
}

// QdrantConfig contains connection details for the remote vector backend.
type QdrantConfig struct {
	Host       string `yaml:"host" json:"host"`
	Port       int    `yaml:"port" json:"port"`
	Collection string `yaml:"collection" json:"collection"`
	APIKeyEnv  string `yaml:"api_key_env" json:"api_key_env"`
	UseTLS     bool   `yaml:"use_tls" json:"use_tls"`
}

// IdentityConfig carries an externally assigned account id. When set it wins
// over the machine-local id in namespace derivation.
type IdentityConfig struct {
	AccountID string `yaml:"account_id" json:"account_id"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
}

// DefaultExcludes are always skipped by the scanner. Entries use
// .gitignore syntax.
var DefaultExcludes = []string{
	".git/",
	"node_modules/",
	"vendor/",
	"dist/",
	"build/",
	".amanidx/",
	"__pycache__/",
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			Enabled:           true,
			MaxConcurrentJobs: 2,
			DebounceMS:        500,
			BatchSize:         64,
			WindowLines:       200,
			MaxFileSize:       1 << 20,
			RespectGitignore:  true,
			Exclude:           append([]string(nil), DefaultExcludes...),
		},
		Search: SearchConfig{
			Enabled:         true,
			Lexical:         true,
			TopK:            20,
			LexicalRowLimit: 50,
			MaxResults:      10,
		},
		Embeddings: EmbeddingsConfig{
			Runtime:           "auto",
			Model:             "text-embedding-3-small",
			APIKeyEnv:         "AMANIDX_EMBEDDINGS_API_KEY",
			MaxBatchItems:     128,
			MaxBatchTokens:    120000,
			RequestsPerMinute: 300,
			MaxAttempts:       5,
			Timeout:           "60s",
			CacheSize:         4096,
		},
		Storage: StorageConfig{
			Backend:  "local",
			DataDir:  defaultDataDir(),
			PageSize: 1000,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "amanidx_chunks",
				APIKeyEnv:  "AMANIDX_QDRANT_API_KEY",
			},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns ~/.amanidx, or a temp dir fallback.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanidx")
	}
	return filepath.Join(home, ".amanidx")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/amanidx/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amanidx/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanidx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanidx", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanidx", "config.yaml")
}

// Load loads configuration for the workspace rooted at dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanidx/config.yaml)
//  3. Project config (.amanidx.yaml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables (AMANIDX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	if err := cfg.loadYAML(filepath.Join(dir, ProjectConfigFile)); err != nil {
		return nil, err
	}

	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML decodes path over c; keys absent from the file keep their current
// values. Exclude patterns append to the defaults rather than replace them.
// A missing file is not an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	excludes := c.Indexing.Exclude
	c.Indexing.Exclude = nil

	if err := yaml.Unmarshal(data, c); err != nil {
		c.Indexing.Exclude = excludes
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.Indexing.Exclude = append(excludes, c.Indexing.Exclude...)
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies AMANIDX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v, ok := envBool("AMANIDX_INDEXING_ENABLED"); ok {
		c.Indexing.Enabled = v
	}
	if v, ok := envBool("AMANIDX_SEARCH_ENABLED"); ok {
		c.Search.Enabled = v
	}
	if v, ok := envInt("AMANIDX_MAX_CONCURRENT_JOBS"); ok && v > 0 {
		c.Indexing.MaxConcurrentJobs = v
	}
	if v, ok := envInt("AMANIDX_DEBOUNCE_MS"); ok && v >= 0 {
		c.Indexing.DebounceMS = v
	}

	if v := os.Getenv("AMANIDX_EMBEDDINGS_RUNTIME"); v != "" {
		c.Embeddings.Runtime = v
	}
	if v := os.Getenv("AMANIDX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("AMANIDX_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v, ok := envInt("AMANIDX_REQUESTS_PER_MINUTE"); ok {
		c.Embeddings.RequestsPerMinute = v
	}

	if v := os.Getenv("AMANIDX_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("AMANIDX_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("AMANIDX_QDRANT_HOST"); v != "" {
		c.Storage.Qdrant.Host = v
	}
	if v, ok := envInt("AMANIDX_QDRANT_PORT"); ok && v > 0 {
		c.Storage.Qdrant.Port = v
	}
	if v, ok := envBool("AMANIDX_STREAM_VECTORS"); ok {
		c.Storage.StreamVectors = v
	}

	if v := os.Getenv("AMANIDX_ACCOUNT_ID"); v != "" {
		c.Identity.AccountID = v
	}
	if v := os.Getenv("AMANIDX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Indexing.MaxConcurrentJobs < 1 {
		return fmt.Errorf("indexing.max_concurrent_jobs must be at least 1, got %d", c.Indexing.MaxConcurrentJobs)
	}
	if c.Indexing.DebounceMS < 0 {
		return fmt.Errorf("indexing.debounce_ms must be non-negative, got %d", c.Indexing.DebounceMS)
	}
	if c.Indexing.WindowLines < 1 {
		return fmt.Errorf("indexing.window_lines must be at least 1, got %d", c.Indexing.WindowLines)
	}
	if c.Indexing.BatchSize < 1 {
		return fmt.Errorf("indexing.batch_size must be at least 1, got %d", c.Indexing.BatchSize)
	}

	if c.Search.TopK < 1 || c.Search.MaxResults < 1 || c.Search.LexicalRowLimit < 1 {
		return fmt.Errorf("search.top_k, search.max_results and search.lexical_row_limit must be positive")
	}

	switch strings.ToLower(c.Embeddings.Runtime) {
	case "hash", "onnx", "http", "openai", "auto":
	default:
		return fmt.Errorf("embeddings.runtime must be 'hash', 'onnx', 'http', 'openai', or 'auto', got %s", c.Embeddings.Runtime)
	}
	if c.Embeddings.MaxBatchItems < 1 || c.Embeddings.MaxBatchTokens < 1 {
		return fmt.Errorf("embeddings.max_batch_items and embeddings.max_batch_tokens must be positive")
	}
	if c.Embeddings.MaxAttempts < 1 {
		return fmt.Errorf("embeddings.max_attempts must be at least 1, got %d", c.Embeddings.MaxAttempts)
	}
	if _, err := time.ParseDuration(c.Embeddings.Timeout); err != nil {
		return fmt.Errorf("embeddings.timeout: %w", err)
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "local", "remote":
	default:
		return fmt.Errorf("storage.backend must be 'local' or 'remote', got %s", c.Storage.Backend)
	}
	if c.Storage.PageSize < 1 {
		return fmt.Errorf("storage.page_size must be at least 1, got %d", c.Storage.PageSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// Debounce returns the debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Indexing.DebounceMS) * time.Millisecond
}

// EmbeddingTimeout returns the per-request provider timeout.
func (c *Config) EmbeddingTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embeddings.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot walks up from startDir looking for .git or .amanidx.yaml.
// Falls back to the absolute startDir.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) || fileExists(filepath.Join(currentDir, ProjectConfigFile)) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
