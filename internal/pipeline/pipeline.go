// Package pipeline implements the gateway's single public entry point:
// resolve model, route, budget pre-flight, execute with retry/fallback,
// persist, update health, return. The HTTP completions handler, the
// workflow step executor, and the MCP tool adapter all call the same
// Complete function — there is no divergent path between them.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/blueberrycongee/aihub/internal/budget"
	"github.com/blueberrycongee/aihub/internal/health"
	"github.com/blueberrycongee/aihub/internal/metrics"
	provreg "github.com/blueberrycongee/aihub/internal/provider"
	"github.com/blueberrycongee/aihub/internal/retry"
	"github.com/blueberrycongee/aihub/internal/router"
	"github.com/blueberrycongee/aihub/internal/store"
	aerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/types"
)

// Config holds the gateway-wide routing and retry policy.
type Config struct {
	FamilyRules   router.FamilyRules
	FallbackRules router.FallbackRules
	ModelAliases  map[string]string
	Retry         retry.Config
	HTTPTimeout   time.Duration
}

// Pipeline wires the store, provider registry, router, budget
// enforcer, retry executor, and health monitor into the single request
// lifecycle every caller goes through.
type Pipeline struct {
	cfg      Config
	store    *store.Store
	registry *provreg.Registry
	monitor  *health.Monitor
	client   *http.Client
	logger   *slog.Logger
}

// New constructs a Pipeline. logger defaults to slog.Default() if nil.
func New(cfg Config, s *store.Store, registry *provreg.Registry, monitor *health.Monitor, logger *slog.Logger) *Pipeline {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		store:    s,
		registry: registry,
		monitor:  monitor,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger:   logger,
	}
}

// Outcome carries the fallback annotations the caller surfaces as
// response headers (X-Fallback, X-Original-Provider, X-Actual-Provider).
type Outcome struct {
	OriginalProvider string
	ActualProvider   string
	UsedFallback     bool
	Attempts         int
	LatencyMS        int64
}

// Complete runs the full pipeline for a single chat completion request.
// workflowName is recorded on the persisted request row for workflow
// step invocations; pass "" for direct HTTP/MCP calls.
func (p *Pipeline) Complete(ctx context.Context, req *types.ChatRequest, workflowName string) (*types.ChatResponse, *Outcome, error) {
	start := time.Now()

	model := p.resolveModel(req.Model)
	if model == "" {
		err := aerrors.NewBadRequest("model is required")
		p.persist(req.Model, nil, 0, 0, 0, time.Since(start), false, err.Error(), workflowName)
		return nil, nil, err
	}
	req.Model = model

	if req.MaxTokens == 0 {
		err := aerrors.NewBadRequest("max_tokens is required and must be greater than 0")
		p.persist(model, nil, 0, 0, 0, time.Since(start), false, err.Error(), workflowName)
		return nil, nil, err
	}

	connections, err := p.store.ListConnections()
	if err != nil {
		return nil, nil, aerrors.Wrap(aerrors.KindInternal, err, "list connections")
	}

	chain := router.Route(model, connections, p.cfg.FamilyRules, p.cfg.FallbackRules)
	if len(chain) == 0 {
		notConfigured := aerrors.NewProviderNotConfigured(model)
		p.persist(model, nil, 0, 0, 0, time.Since(start), false, notConfigured.Error(), workflowName)
		return nil, nil, notConfigured
	}

	if err := budget.Check(p.store, chain[0].Connection, time.Now().UTC()); err != nil {
		p.persist(model, chain[0].Connection, 0, 0, 0, time.Since(start), false, err.Error(), workflowName)
		return nil, nil, err
	}

	result, execErr := retry.Run(ctx, chain, p.cfg.Retry, func(ctx context.Context, entry router.Entry) (*types.ChatResponse, error) {
		return p.attempt(ctx, entry, req)
	})

	latency := time.Since(start)
	outcome := &Outcome{OriginalProvider: chain[0].Family, LatencyMS: latency.Milliseconds()}

	if execErr != nil {
		p.persist(model, chain[0].Connection, 0, 0, 0, latency, false, execErr.Error(), workflowName)
		state := p.monitor.ReportFailure(chain[0].Connection.ID)
		metrics.RecordRequest(model, chain[0].Family, chain[0].Connection.ID, false, latency, 0, 0, 0)
		metrics.ProviderHealthState.WithLabelValues(chain[0].Connection.ID, chain[0].Family).Set(healthStateValue(state))
		return nil, outcome, execErr
	}

	outcome.ActualProvider = result.Provider
	outcome.UsedFallback = result.UsedFallback
	outcome.Attempts = result.Attempts

	servedConn := connectionForFamily(chain, result.Provider)
	cost := p.costFor(servedConn, model, result.Response)
	pt, ct := promptTokens(result.Response), completionTokens(result.Response)
	p.persist(model, servedConn, pt, ct, cost, latency, true, "", workflowName)
	state := p.monitor.ReportSuccess(servedConn.ID)
	metrics.RecordRequest(model, result.Provider, servedConn.ID, true, latency, pt, ct, cost)
	metrics.RetryAttempts.WithLabelValues(model).Observe(float64(result.Attempts))
	metrics.ProviderHealthState.WithLabelValues(servedConn.ID, result.Provider).Set(healthStateValue(state))

	return result.Response, outcome, nil
}

func healthStateValue(s health.State) float64 {
	switch s {
	case health.StateDegraded:
		return 1
	case health.StateError:
		return 2
	default:
		return 0
	}
}

func (p *Pipeline) attempt(ctx context.Context, entry router.Entry, req *types.ChatRequest) (*types.ChatResponse, error) {
	prov, ok := p.registry.GetProvider(entry.Connection.ID)
	if !ok {
		return nil, aerrors.NewProviderNotConfigured(req.Model).WithProvider(entry.Family)
	}

	httpReq, err := prov.BuildRequest(ctx, req)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.KindInternal, err, "build upstream request").WithProvider(entry.Family)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.KindUpstreamTransient, err, "upstream request failed").WithProvider(entry.Family)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return nil, prov.MapError(resp.StatusCode, body, resp.Header)
	}

	chatResp, err := prov.ParseResponse(resp)
	if err != nil {
		return nil, aerrors.Wrap(aerrors.KindInternal, err, "parse upstream response").WithProvider(entry.Family)
	}
	return chatResp, nil
}

func (p *Pipeline) resolveModel(model string) string {
	if alias, ok := p.cfg.ModelAliases[model]; ok {
		return alias
	}
	return model
}

func (p *Pipeline) costFor(c *store.Connection, model string, resp *types.ChatResponse) float64 {
	cfg, err := p.store.FindCostConfig(c.ID, model)
	if err != nil || resp == nil || resp.Usage == nil {
		return 0
	}
	input := float64(resp.Usage.PromptTokens) / 1_000_000 * cfg.InputUSDPerMillion
	output := float64(resp.Usage.CompletionTokens) / 1_000_000 * cfg.OutputUSDPerMillion
	return input + output
}

func (p *Pipeline) persist(model string, c *store.Connection, promptTok, completionTok int, cost float64, latency time.Duration, success bool, errMsg, workflowName string) {
	var provider, connectionID string
	if c != nil {
		provider, connectionID = c.ServiceKey, c.ID
	}
	err := p.store.InsertRequest(&store.Request{
		Model:            model,
		Provider:         provider,
		ConnectionID:     connectionID,
		PromptTokens:     promptTok,
		CompletionTokens: completionTok,
		CostUSD:          cost,
		LatencyMS:        latency.Milliseconds(),
		Success:          success,
		Error:            errMsg,
		WorkflowName:     workflowName,
	})
	if err != nil {
		p.logger.Error("pipeline: failed to persist request row", "error", err, "model", model, "connection_id", connectionID)
	}
}

func connectionForFamily(chain []router.Entry, family string) *store.Connection {
	for _, e := range chain {
		if e.Family == family {
			return e.Connection
		}
	}
	return chain[0].Connection
}

func promptTokens(resp *types.ChatResponse) int {
	if resp == nil || resp.Usage == nil {
		return 0
	}
	return resp.Usage.PromptTokens
}

func completionTokens(resp *types.ChatResponse) int {
	if resp == nil || resp.Usage == nil {
		return 0
	}
	return resp.Usage.CompletionTokens
}
