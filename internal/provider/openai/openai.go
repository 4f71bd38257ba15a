// Package openai implements the OpenAI-compatible chat adapter. It is
// the reference implementation other adapters in this module follow.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/provider"
	"github.com/blueberrycongee/aihub/pkg/types"
)

const (
	ProviderName   = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
)

// Provider implements the OpenAI chat-completions adapter.
type Provider struct {
	apiKey  string
	baseURL string
	models  []string
	headers map[string]string
	client  *http.Client
}

// New constructs an OpenAI provider from configuration.
func New(cfg provider.Config) (provider.Provider, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		models:  cfg.Models,
		headers: cfg.Headers,
		client:  &http.Client{},
	}, nil
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) SupportedModels() []string { return p.models }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1-")
}

// BuildRequest creates an HTTP request for the OpenAI chat completions endpoint.
func (p *Provider) BuildRequest(ctx context.Context, req *types.ChatRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, nil
}

// ParseResponse transforms an OpenAI response into the unified format.
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

// MapError converts an OpenAI error response into the gateway's error taxonomy.
func (p *Provider) MapError(statusCode int, body []byte, headers http.Header) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := "unknown error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmerrors.NewAuth(ProviderName, message)
	case http.StatusTooManyRequests:
		err := llmerrors.NewUpstreamRateLimited(ProviderName, message)
		if d, ok := retryAfter(headers); ok {
			return err.WithMetadata(map[string]any{"retry_after": d})
		}
		return err
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return llmerrors.NewBadRequest(message).WithProvider(ProviderName)
	default:
		if statusCode >= 500 {
			return llmerrors.NewUpstreamTransient(ProviderName, message)
		}
		return llmerrors.NewInternal(message).WithProvider(ProviderName)
	}
}

// Probe issues a cheap models-list call to verify the connection is reachable.
func (p *Provider) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return time.Since(start), err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return time.Since(start), p.MapError(resp.StatusCode, body, resp.Header)
	}
	return time.Since(start), nil
}

// ListModels queries OpenAI's /models endpoint. If the connection was
// configured with an explicit model list, that list is returned
// instead without a round-trip.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	if len(p.models) > 0 {
		return p.models, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
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
	return models, nil
}

func retryAfter(headers http.Header) (time.Duration, bool) {
	if headers == nil {
		return 0, false
	}
	v := headers.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}
