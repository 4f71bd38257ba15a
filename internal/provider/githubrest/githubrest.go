// Package githubrest implements the GitHub REST wrapper, one of the
// non-LLM adapter families spec.md §4.3 groups under the same
// capability set. It shares the provider value type and registry but
// serves no chat models; internal/pipeline never dispatches to it.
package githubrest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	llmerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/provider"
	"github.com/blueberrycongee/aihub/pkg/types"
)

const (
	ProviderName   = "github"
	DefaultBaseURL = "https://api.github.com"
)

// Provider implements a thin GitHub REST client. It satisfies
// provider.Provider structurally so it can sit in the same registry
// and share the executor's retry/classification logic, but it has no
// chat models: BuildRequest/ParseResponse are not meaningful for it
// and it is never selected by the router for a model name.
type Provider struct {
	token   string
	baseURL string
	client  *http.Client
}

// New constructs a GitHub REST provider from configuration.
func New(cfg provider.Config) (provider.Provider, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{token: cfg.APIKey, baseURL: baseURL, client: &http.Client{}}, nil
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) SupportedModels() []string { return nil }

func (p *Provider) SupportsModel(string) bool { return false }

// BuildRequest is unused for this family: callers invoke Call directly
// for a given operation/endpoint rather than the chat-shaped path.
func (p *Provider) BuildRequest(context.Context, *types.ChatRequest) (*http.Request, error) {
	return nil, fmt.Errorf("githubrest: chat completions are not supported")
}

func (p *Provider) ParseResponse(*http.Response) (*types.ChatResponse, error) {
	return nil, fmt.Errorf("githubrest: chat completions are not supported")
}

// MapError converts a GitHub error response into the gateway's error taxonomy.
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

// Call performs a REST operation against the GitHub API and returns
// the raw response to the caller.
func (p *Provider) Call(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	return p.client.Do(req)
}

// ListModels always returns an empty list: this family has no chat
// models, it only services ApiCall-shaped REST operations.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return nil, nil
}

// Probe checks reachability and auth via GET /user (or /rate_limit when unauthenticated).
func (p *Provider) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	path := "/rate_limit"
	if p.token != "" {
		path = "/user"
	}
	resp, err := p.Call(ctx, http.MethodGet, path)
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
