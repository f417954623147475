package embed

import (
	"context"
	"errors"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// knownOpenAIDimensions are the native output sizes of OpenAI embedding models.
var knownOpenAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI embeddings provider.
type OpenAIConfig struct {
	Model  string
	APIKey string

	// BaseURL points the client at an OpenAI-compatible endpoint. When set,
	// the input type is sent as an extra "input_type" field.
	BaseURL string

	// Dimensions overrides the native size; it is sent as the "dimensions"
	// parameter.
	Dimensions int
}

// OpenAIProvider embeds through the OpenAI embeddings API.
type OpenAIProvider struct {
	client     openai.Client
	config     OpenAIConfig
	dimensions int
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider. Client retries are disabled; the
// gateway owns retry policy.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, amerrors.New(amerrors.ErrCodeInvalidCredentials, "openai embedding provider requires an API key", nil).
			WithSuggestion("Set the environment variable named by embeddings.api_key_env")
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = knownOpenAIDimensions[cfg.Model]
	}
	if dims <= 0 {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "embeddings.dimensions is required for model "+cfg.Model, nil)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		config:     cfg,
		dimensions: dims,
	}, nil
}

func (p *OpenAIProvider) Kind() ProviderKind { return KindOpenAI }

func (p *OpenAIProvider) Model() string { return p.config.Model }

func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// EmbedBatch sends one embeddings request. Vectors are returned in input
// order regardless of the order of the response data.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.config.Model),
	}
	if p.config.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.config.Dimensions))
	}

	var reqOpts []option.RequestOption
	if p.config.BaseURL != "" && inputType != "" {
		reqOpts = append(reqOpts, option.WithJSONSet("input_type", string(inputType)))
	}

	resp, err := p.client.Embeddings.New(ctx, params, reqOpts...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, statusError(KindOpenAI, apiErr.StatusCode, apiErr.Message)
		}
		return nil, unreachable(KindOpenAI, err)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([][]float32, len(data))
	for i, d := range data {
		embeddings[i] = toFloat32(d.Embedding)
	}
	return embeddings, nil
}

func (p *OpenAIProvider) Close() error { return nil }
