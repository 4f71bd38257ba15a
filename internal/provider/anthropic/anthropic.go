// Package anthropic implements the Anthropic Messages API adapter,
// translating the OpenAI-compatible canonical request/response shape
// to and from Anthropic's wire format.
package anthropic

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
	ProviderName      = "anthropic"
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
	DefaultMaxTokens  = 4096
)

// Provider implements the Anthropic Messages API adapter.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	models     []string
	client     *http.Client
}

// New constructs an Anthropic provider from configuration.
func New(cfg provider.Config) (provider.Provider, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		apiVersion: DefaultAPIVersion,
		models:     cfg.Models,
		client:     &http.Client{},
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
	return strings.HasPrefix(model, "claude")
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// BuildRequest creates an HTTP request for the Anthropic Messages API,
// extracting any system message into Anthropic's separate parameter
// (the canonical shape carries it inline as role="system").
func (p *Provider) BuildRequest(ctx context.Context, req *types.ChatRequest) (*http.Request, error) {
	anthropicReq := &anthropicRequest{
		Model:     req.Model,
		MaxTokens: DefaultMaxTokens,
	}
	if req.MaxTokens > 0 {
		anthropicReq.MaxTokens = req.MaxTokens
	}
	anthropicReq.Temperature = req.Temperature
	anthropicReq.TopP = req.TopP
	if len(req.Stop) > 0 {
		anthropicReq.StopSequences = req.Stop
	}

	for _, msg := range req.Messages {
		text := messageText(msg.Content)
		if msg.Role == "system" {
			if anthropicReq.System != "" {
				anthropicReq.System += "\n"
			}
			anthropicReq.System += text
			continue
		}
		anthropicReq.Messages = append(anthropicReq.Messages, anthropicMessage{Role: msg.Role, Content: text})
	}
	if len(anthropicReq.Messages) == 0 {
		return nil, fmt.Errorf("no user/assistant messages after extracting system prompt")
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.apiVersion)
	return httpReq, nil
}

func messageText(content []byte) string {
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	return string(content)
}

// ParseResponse transforms an Anthropic response into the unified format.
func (p *Provider) ParseResponse(resp *http.Response) (*types.ChatResponse, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var text strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	encoded, err := json.Marshal(text.String())
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}

	return &types.ChatResponse{
		ID:     anthropicResp.ID,
		Object: "chat.completion",
		Model:  anthropicResp.Model,
		Choices: []types.Choice{{
			Index:        0,
			Message:      types.ChatMessage{Role: "assistant", Content: encoded},
			FinishReason: mapStopReason(anthropicResp.StopReason),
		}},
		Usage: &types.Usage{
			PromptTokens:     anthropicResp.Usage.InputTokens,
			CompletionTokens: anthropicResp.Usage.OutputTokens,
			TotalTokens:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
	}, nil
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}

// MapError converts an Anthropic error response into the gateway's error taxonomy.
func (p *Provider) MapError(statusCode int, body []byte, headers http.Header) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
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
		if headers != nil {
			if secs, convErr := strconv.Atoi(headers.Get("Retry-After")); convErr == nil {
				return err.WithMetadata(map[string]any{"retry_after": time.Duration(secs) * time.Second})
			}
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

// ListModels returns the configured model list. Anthropic's models
// endpoint requires the same versioned headers as a completion call
// and offers no material advantage over the static list an operator
// already supplies when registering the connection.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	if len(p.models) > 0 {
		return p.models, nil
	}
	return []string{"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022", "claude-3-opus-20240229"}, nil
}

// Probe sends a 1-token completion request, the cheapest real call
// Anthropic's API supports (it has no separate health endpoint).
func (p *Provider) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	model := "claude-3-haiku-20240307"
	for _, m := range p.models {
		model = m
		break
	}
	req := &types.ChatRequest{
		Model:     model,
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
		body, _ := io.ReadAll(resp.Body)
		return time.Since(start), p.MapError(resp.StatusCode, body, resp.Header)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return time.Since(start), nil
}
