package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// HTTPConfig configures a generic JSON embedding endpoint.
type HTTPConfig struct {
	// Endpoint is the full URL that accepts POST requests.
	Endpoint   string
	Model      string
	APIKey     string
	Dimensions int
	PoolSize   int
}

type httpRequest struct {
	Model     string    `json:"model"`
	Input     []string  `json:"input"`
	InputType InputType `json:"input_type,omitempty"`
}

type httpResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// HTTPProvider posts {model, input, input_type} and reads
// {data: [{embedding}], usage: {total_tokens}}.
type HTTPProvider struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider creates a provider for cfg.Endpoint. The endpoint is not
// contacted until the first batch.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.Endpoint == "" {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "http embedding provider requires an endpoint", nil)
	}
	if cfg.Dimensions <= 0 {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "http embedding provider requires dimensions", nil).
			WithDetail("endpoint", cfg.Endpoint)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	// No client Timeout: the gateway bounds each request through ctx.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &HTTPProvider{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}, nil
}

func (p *HTTPProvider) Kind() ProviderKind { return KindHTTP }

func (p *HTTPProvider) Model() string { return p.config.Model }

func (p *HTTPProvider) Dimensions() int { return p.config.Dimensions }

// EmbedBatch sends one request for texts.
func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, amerrors.New(amerrors.ErrCodeProviderUnavailable, "http embedding provider is closed", nil)
	}

	body, err := json.Marshal(httpRequest{Model: p.config.Model, Input: texts, InputType: inputType})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "invalid embedding endpoint", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unreachable(KindHTTP, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, statusError(KindHTTP, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeUnexpectedResponseShape, "failed to decode embedding response", err)
	}

	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = toFloat32(d.Embedding)
	}
	return embeddings, nil
}

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.transport.CloseIdleConnections()
	return nil
}

// statusError maps a non-2xx status to a provider error. 429 is retryable,
// 401 is fatal, anything else carries status and body.
func statusError(kind ProviderKind, status int, body string) error {
	switch status {
	case http.StatusTooManyRequests:
		return amerrors.New(amerrors.ErrCodeRateLimited, string(kind)+" embedding provider rate limited", nil).
			WithDetail("status", fmt.Sprint(status))
	case http.StatusUnauthorized:
		return amerrors.New(amerrors.ErrCodeInvalidCredentials, string(kind)+" embedding provider rejected credentials", nil).
			WithDetail("status", fmt.Sprint(status)).
			WithSuggestion("Check the API key environment variable named by embeddings.api_key_env")
	default:
		return amerrors.New(amerrors.ErrCodeProviderError,
			fmt.Sprintf("%s embedding provider returned status %d: %s", kind, status, body), nil).
			WithDetail("status", fmt.Sprint(status)).
			WithDetail("body", body)
	}
}

func unreachable(kind ProviderKind, err error) error {
	return amerrors.New(amerrors.ErrCodeProviderUnavailable, string(kind)+" embedding provider unreachable", err)
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
