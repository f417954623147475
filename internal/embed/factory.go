package embed

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Aman-CERP/amanidx/internal/config"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// Runtime names accepted in embeddings.runtime.
const (
	RuntimeHash   = "hash"
	RuntimeHTTP   = "http"
	RuntimeOpenAI = "openai"
	RuntimeAuto   = "auto"

	// RuntimeONNX names a local ONNX model runtime. This build has none, so
	// it resolves to the hash provider.
	RuntimeONNX = "onnx"
)

// NewProviders builds the provider list for cfg, highest priority first.
// A remote runtime is always followed by the hash provider so indexing can
// continue when the remote side is unusable.
//
//   - hash:   [hash]
//   - onnx:   [hash]
//   - http:   [http, hash]
//   - openai: [openai, hash]
//   - auto:   http when an endpoint is set, else openai when a key is set,
//     else hash alone
func NewProviders(cfg config.EmbeddingsConfig) ([]Provider, error) {
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	runtime := strings.ToLower(cfg.Runtime)
	if runtime == RuntimeAuto || runtime == "" {
		switch {
		case cfg.Endpoint != "" && cfg.Dimensions > 0:
			runtime = RuntimeHTTP
		case apiKey != "":
			runtime = RuntimeOpenAI
		default:
			runtime = RuntimeHash
		}
	}

	switch runtime {
	case RuntimeHash, RuntimeONNX:
		return []Provider{NewHashProvider()}, nil
	case RuntimeHTTP:
		p, err := NewHTTPProvider(HTTPConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			APIKey:     apiKey,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return []Provider{p, NewHashProvider()}, nil
	case RuntimeOpenAI:
		p, err := NewOpenAIProvider(OpenAIConfig{
			Model:      cfg.Model,
			APIKey:     apiKey,
			BaseURL:    cfg.Endpoint,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return []Provider{p, NewHashProvider()}, nil
	default:
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "unknown embeddings.runtime: "+cfg.Runtime, nil)
	}
}

// NewFromConfig builds a gateway with its own cache from cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	providers, err := NewProviders(cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(cfg.Embeddings.Runtime, RuntimeONNX) && logger != nil {
		logger.Warn("embedding_runtime_unsupported",
			slog.String("runtime", RuntimeONNX),
			slog.String("fallback", HashModel))
	}

	retry := amerrors.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Embeddings.MaxAttempts

	return NewGateway(
		NewStrategy(logger, providers...),
		NewCache(cfg.Embeddings.CacheSize),
		Options{
			MaxBatchItems:     cfg.Embeddings.MaxBatchItems,
			MaxBatchTokens:    cfg.Embeddings.MaxBatchTokens,
			RequestsPerMinute: cfg.Embeddings.RequestsPerMinute,
			Retry:             retry,
			Timeout:           cfg.EmbeddingTimeout(),
		},
		logger,
	), nil
}
