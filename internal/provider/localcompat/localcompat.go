// Package localcompat implements the local OpenAI-compatible adapter
// used for self-hosted inference servers (Ollama, LM Studio, vLLM,
// llama.cpp server, ...). It speaks the same wire shape as the OpenAI
// adapter but rewrites the "local" model alias to a configured default
// and never requires an API key.
package localcompat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/provider"
	"github.com/blueberrycongee/aihub/pkg/types"
)

const (
	ProviderName         = "local"
	DefaultBaseURL       = "http://localhost:11434/v1"
	ModelAlias           = "local"
	defaultFallbackModel = "qwen2.5:32b"
)

// Provider implements the local OpenAI-compatible chat adapter. Ollama
// exposes this shape at the /v1/chat/completions compatibility
// endpoint rather than its native /api/chat protocol; this adapter
// always targets that compatibility endpoint.
type Provider struct {
	baseURL      string
	apiKey       string
	defaultModel string
	models       []string
	client       *http.Client
}

// New constructs a local-OpenAI-compatible provider from configuration.
func New(cfg provider.Config) (provider.Provider, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	defaultModel := cfg.DefaultLocalModel
	if defaultModel == "" {
		defaultModel = defaultFallbackModel
	}
	return &Provider{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		defaultModel: defaultModel,
		models:       cfg.Models,
		client:       &http.Client{},
	}, nil
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) SupportedModels() []string { return p.models }

// SupportsModel matches only the configured model list and the "local"
// alias. Sending models no family rule claims to the local family is
// done by internal/router, not here.
func (p *Provider) SupportsModel(model string) bool {
	if model == ModelAlias {
		return true
	}
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

// resolveModel rewrites the "local" alias to the configured default;
// adapters never see the alias themselves (spec.md §4.3).
func (p *Provider) resolveModel(model string) string {
	if model == ModelAlias || model == "" {
		return p.defaultModel
	}
	return model
}

// BuildRequest creates an HTTP request against the compatibility endpoint.
func (p *Provider) BuildRequest(ctx context.Context, req *types.ChatRequest) (*http.Request, error) {
	resolved := *req
	resolved.Model = p.resolveModel(req.Model)

	body, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return httpReq, nil
}

// ParseResponse transforms a local-server response into the unified format.
func (p *Provider) ParseResponse(resp *http.Response) (*types.ChatResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var chatResp types.ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &chatResp, nil
}

// MapError converts a local-server error response into the gateway's error taxonomy.
func (p *Provider) MapError(statusCode int, body []byte, headers http.Header) error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = "unknown error"
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmerrors.NewAuth(ProviderName, message)
	case http.StatusTooManyRequests:
		return llmerrors.NewUpstreamRateLimited(ProviderName, message)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return llmerrors.NewBadRequest(message).WithProvider(ProviderName)
	default:
		if statusCode >= 500 {
			return llmerrors.NewUpstreamTransient(ProviderName, message)
		}
		return llmerrors.NewInternal(message).WithProvider(ProviderName)
	}
}

// ListModels queries the server's /v1/models endpoint, the same
// compatibility surface Ollama and LM Studio expose for model
// discovery.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	if len(p.models) > 0 {
		return p.models, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, p.MapError(resp.StatusCode, body, resp.Header)
	}

	var listResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, fmt.Errorf("unmarshal models response: %w", err)
	}

	models := make([]string, 0, len(listResp.Data))
	for _, m := range listResp.Data {
		models = append(models, m.ID)
	}
	if len(models) == 0 {
		return []string{p.defaultModel}, nil
	}
	return models, nil
}

// Probe issues a minimal completion request against the default local model.
func (p *Provider) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	req := &types.ChatRequest{
		Model:     ModelAlias,
		MaxTokens: 1,
		Messages:  []types.ChatMessage{{Role: "user", Content: []byte(`"ping"`)}},
	}
	httpReq, err := p.BuildRequest(ctx, req)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return time.Since(start), err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		return time.Since(start), p.MapError(resp.StatusCode, b, resp.Header)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return time.Since(start), nil
}
