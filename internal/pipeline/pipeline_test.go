package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/aihub/internal/health"
	provreg "github.com/blueberrycongee/aihub/internal/provider"
	"github.com/blueberrycongee/aihub/internal/retry"
	"github.com/blueberrycongee/aihub/internal/router"
	"github.com/blueberrycongee/aihub/internal/store"
	aerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/provider"
	"github.com/blueberrycongee/aihub/pkg/types"
)

// stubProvider forwards BuildRequest to a backing httptest server; whether
// a call succeeds or fails depends on the status that server returns.
type stubProvider struct {
	name      string
	targetURL string
	calls     int
}

func (p *stubProvider) Name() string                    { return p.name }
func (p *stubProvider) SupportedModels() []string       { return nil }
func (p *stubProvider) SupportsModel(model string) bool { return true }

func (p *stubProvider) BuildRequest(ctx context.Context, req *types.ChatRequest) (*http.Request, error) {
	p.calls++
	return http.NewRequestWithContext(ctx, http.MethodPost, p.targetURL, nil)
}

func (p *stubProvider) ParseResponse(resp *http.Response) (*types.ChatResponse, error) {
	var out types.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *stubProvider) MapError(statusCode int, body []byte, headers http.Header) error {
	if statusCode == http.StatusTooManyRequests {
		return aerrors.NewUpstreamRateLimited(p.name, "rate limited")
	}
	return aerrors.NewAuth(p.name, "unauthorized")
}

func (p *stubProvider) Probe(ctx context.Context) (time.Duration, error) { return 0, nil }

func (p *stubProvider) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestPipeline(t *testing.T, s *store.Store, registry *provreg.Registry, rules router.FamilyRules, fallbacks router.FallbackRules) *Pipeline {
	t.Helper()
	monitor := health.NewMonitor(health.DefaultConfig(), s, registry, nil)
	cfg := Config{
		FamilyRules:   rules,
		FallbackRules: fallbacks,
		Retry:         retry.Config{Base: time.Millisecond, Growth: 1, MaxAttempts: 1},
	}
	return New(cfg, s, registry, monitor, nil)
}

func jsonResponder(t *testing.T, status int, resp types.ChatResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status < http.StatusBadRequest {
			_ = json.NewEncoder(w).Encode(resp)
		}
	}))
}

func TestCompleteSuccessPersistsRequestAndReportsHealth(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&store.Connection{Name: "openai-primary", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)
	_, err = s.UpsertCostConfig(&store.CostConfig{ConnectionID: c.ID, ModelPattern: "gpt-4o", InputUSDPerMillion: 5, OutputUSDPerMillion: 15})
	require.NoError(t, err)

	srv := jsonResponder(t, http.StatusOK, types.ChatResponse{
		ID: "resp-1", Model: "gpt-4o",
		Usage: &types.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	})
	defer srv.Close()

	registry := provreg.NewRegistry()
	registry.RegisterFactory("openai", func(cfg provider.Config) (provider.Provider, error) {
		return &stubProvider{name: "openai", targetURL: srv.URL}, nil
	})
	_, err = registry.CreateProvider(c.ID, "openai", provider.Config{})
	require.NoError(t, err)

	p := newTestPipeline(t, s, registry, router.FamilyRules{"gpt-": "openai"}, nil)

	resp, outcome, err := p.Complete(context.Background(), &types.ChatRequest{Model: "gpt-4o", MaxTokens: 100}, "")
	require.NoError(t, err)
	assert.Equal(t, "resp-1", resp.ID)
	assert.False(t, outcome.UsedFallback)
	assert.Equal(t, "openai", outcome.ActualProvider)

	recent, err := s.RecentRequests(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Success)
	assert.Equal(t, 100, recent[0].PromptTokens)
	assert.InDelta(t, 100.0/1_000_000*5+50.0/1_000_000*15, recent[0].CostUSD, 1e-9)

	assert.Equal(t, health.StateHealthy, p.monitor.State(c.ID))
}

func TestCompleteFallsBackWhenPrimaryFails(t *testing.T) {
	s := newTestStore(t)
	primary, err := s.UpsertConnection(&store.Connection{Name: "openai-primary", ServiceKey: "openai", Enabled: true})
	require.NoError(t, err)
	backup, err := s.UpsertConnection(&store.Connection{Name: "local-backup", ServiceKey: "local", Enabled: true})
	require.NoError(t, err)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer failing.Close()

	ok := jsonResponder(t, http.StatusOK, types.ChatResponse{ID: "resp-fallback", Model: "gpt-4o"})
	defer ok.Close()

	registry := provreg.NewRegistry()
	registry.RegisterFactory("openai", func(cfg provider.Config) (provider.Provider, error) {
		return &stubProvider{name: "openai", targetURL: failing.URL}, nil
	})
	registry.RegisterFactory("local", func(cfg provider.Config) (provider.Provider, error) {
		return &stubProvider{name: "local", targetURL: ok.URL}, nil
	})
	_, err = registry.CreateProvider(primary.ID, "openai", provider.Config{})
	require.NoError(t, err)
	_, err = registry.CreateProvider(backup.ID, "local", provider.Config{})
	require.NoError(t, err)

	p := newTestPipeline(t, s, registry, router.FamilyRules{"gpt-": "openai"}, router.FallbackRules{"openai": "local"})

	resp, outcome, err := p.Complete(context.Background(), &types.ChatRequest{Model: "gpt-4o", MaxTokens: 100}, "")
	require.NoError(t, err)
	assert.Equal(t, "resp-fallback", resp.ID)
	assert.True(t, outcome.UsedFallback)
	assert.Equal(t, "local", outcome.ActualProvider)

	recent, err := s.RecentRequests(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, backup.ID, recent[0].ConnectionID)
}

func TestCompleteRejectsEmptyModel(t *testing.T) {
	s := newTestStore(t)
	registry := provreg.NewRegistry()
	p := newTestPipeline(t, s, registry, router.FamilyRules{}, nil)

	_, _, err := p.Complete(context.Background(), &types.ChatRequest{Model: ""}, "")
	require.Error(t, err)
	assert.True(t, aerrors.Is(err, aerrors.KindBadRequest))

	recent, err := s.RecentRequests(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Success)
}

func TestCompleteReturnsProviderNotConfiguredWhenNoRoute(t *testing.T) {
	s := newTestStore(t)
	registry := provreg.NewRegistry()
	p := newTestPipeline(t, s, registry, router.FamilyRules{"gpt-": "openai"}, nil)

	_, _, err := p.Complete(context.Background(), &types.ChatRequest{Model: "gpt-4o", MaxTokens: 100}, "")
	require.Error(t, err)
	assert.True(t, aerrors.Is(err, aerrors.KindProviderNotConfigured))

	recent, err := s.RecentRequests(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Success)
	assert.Contains(t, recent[0].Error, "provider_not_configured")
}

func TestCompleteReturnsBudgetExceededBeforeCallingProvider(t *testing.T) {
	s := newTestStore(t)
	c, err := s.UpsertConnection(&store.Connection{Name: "openai-primary", ServiceKey: "openai", Enabled: true, DailyLimitUSD: 1})
	require.NoError(t, err)
	require.NoError(t, s.InsertRequest(&store.Request{Model: "gpt-4o", Provider: "openai", ConnectionID: c.ID, Success: true, CostUSD: 5}))

	registry := provreg.NewRegistry()
	registry.RegisterFactory("openai", func(cfg provider.Config) (provider.Provider, error) {
		return &stubProvider{name: "openai"}, nil
	})
	_, err = registry.CreateProvider(c.ID, "openai", provider.Config{})
	require.NoError(t, err)

	p := newTestPipeline(t, s, registry, router.FamilyRules{"gpt-": "openai"}, nil)

	_, _, err = p.Complete(context.Background(), &types.ChatRequest{Model: "gpt-4o", MaxTokens: 100}, "")
	require.Error(t, err)
	assert.True(t, aerrors.Is(err, aerrors.KindBudgetExceeded))

	recent, err := s.RecentRequests(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].Success)
	assert.Contains(t, recent[0].Error, "budget_exceeded")
	assert.Equal(t, c.ID, recent[0].ConnectionID)
}

func TestCompleteRejectsZeroMaxTokens(t *testing.T) {
	s := newTestStore(t)
	registry := provreg.NewRegistry()
	p := newTestPipeline(t, s, registry, router.FamilyRules{"gpt-": "openai"}, nil)

	_, _, err := p.Complete(context.Background(), &types.ChatRequest{Model: "gpt-4o"}, "")
	require.Error(t, err)
	assert.True(t, aerrors.Is(err, aerrors.KindBadRequest))

	recent, err := s.RecentRequests(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Success)
}
