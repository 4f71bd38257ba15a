// Package provider defines the public interface implemented by every
// upstream adapter (OpenAI-compatible chat, Anthropic messages, local
// OpenAI-compatible servers, and REST wrappers for non-LLM upstreams).
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/blueberrycongee/aihub/pkg/types"
)

// Provider is the capability set every adapter implements: complete,
// list models, probe health. BuildRequest/ParseResponse/MapError split
// "complete" the way the retry executor needs it: build the request
// once, hand it to the shared http.Client, then parse or classify
// whatever comes back.
type Provider interface {
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string

	// SupportedModels returns the list of models this provider can handle.
	SupportedModels() []string

	// SupportsModel checks if the provider supports the given model.
	SupportsModel(model string) bool

	// BuildRequest transforms a unified ChatRequest into a provider-specific HTTP request.
	BuildRequest(ctx context.Context, req *types.ChatRequest) (*http.Request, error)

	// ParseResponse transforms a provider-specific response into a unified ChatResponse.
	ParseResponse(resp *http.Response) (*types.ChatResponse, error)

	// MapError converts a provider-specific error response into a standardized error.
	MapError(statusCode int, body []byte, headers http.Header) error

	// Probe performs a minimal health check call and reports latency.
	Probe(ctx context.Context) (latency time.Duration, err error)

	// ListModels returns the model identifiers this connection currently
	// offers, querying the upstream when the family exposes a models
	// endpoint and falling back to the statically configured list
	// otherwise.
	ListModels(ctx context.Context) ([]string, error)
}

// Deployment represents one configured instance of a provider family.
// The router and retry executor work on store.Connection, not on this
// type.
type Deployment struct {
	ConnectionID string
	ProviderName string
	BaseURL      string
	APIKey       string // never serialized
	IsDefault    bool
	UpdatedAt    time.Time
}

// Config contains the configuration needed to construct a Provider.
type Config struct {
	APIKey  string
	BaseURL string
	Models  []string
	Headers map[string]string
	// DefaultLocalModel is substituted for the "local" model alias by
	// the local-OpenAI-compatible adapter.
	DefaultLocalModel string
}

// Factory creates a Provider instance from configuration.
type Factory func(cfg Config) (Provider, error)
