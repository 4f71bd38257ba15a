// Package api provides the gateway's HTTP surface: the OpenAI-compatible
// completions endpoint, model listing, health, and the dashboard/alerts
// management API the local UI drives.
package api //nolint:revive // package name is intentional

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/aihub/internal/health"
	"github.com/blueberrycongee/aihub/internal/pipeline"
	provreg "github.com/blueberrycongee/aihub/internal/provider"
	"github.com/blueberrycongee/aihub/internal/store"
	"github.com/blueberrycongee/aihub/internal/vault"
	aerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/types"
)

// Handler serves every route the gateway exposes. It holds no request
// state of its own; each method reads what it needs from the store,
// registry, pipeline, or background monitors it was constructed with.
type Handler struct {
	pipeline    *pipeline.Pipeline
	store       *store.Store
	registry    *provreg.Registry
	monitor     *health.Monitor
	vault       *vault.Vault
	logger      *slog.Logger
	maxBodySize int64
}

// NewHandler constructs a Handler. logger defaults to slog.Default() if nil.
func NewHandler(p *pipeline.Pipeline, s *store.Store, registry *provreg.Registry, monitor *health.Monitor, v *vault.Vault, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline:    p,
		store:       s,
		registry:    registry,
		monitor:     monitor,
		vault:       v,
		logger:      logger,
		maxBodySize: DefaultMaxBodySize,
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	limited := io.LimitReader(r.Body, h.maxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		h.writeError(w, aerrors.NewBadRequest("failed to read request body"))
		return
	}
	defer func() { _ = r.Body.Close() }()

	if int64(len(body)) > h.maxBodySize {
		h.writeError(w, aerrors.NewBadRequest("request body too large"))
		return
	}

	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, aerrors.NewBadRequest("invalid JSON: "+err.Error()))
		return
	}
	if req.Model == "" {
		h.writeError(w, aerrors.NewBadRequest("model is required"))
		return
	}
	if len(req.Messages) == 0 {
		h.writeError(w, aerrors.NewBadRequest("messages is required"))
		return
	}
	if req.Stream {
		h.writeError(w, aerrors.NewBadRequest("streaming responses are not supported"))
		return
	}

	resp, outcome, err := h.pipeline.Complete(r.Context(), &req, "")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if outcome != nil {
		w.Header().Set("X-Original-Provider", outcome.OriginalProvider)
		w.Header().Set("X-Actual-Provider", outcome.ActualProvider)
		if outcome.UsedFallback {
			w.Header().Set("X-Fallback", "true")
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// modelEntry is one row of the OpenAI-compatible /v1/models listing.
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// ListModels handles GET /v1/models, aggregating every enabled
// connection's live model list.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	connections, err := h.store.ListConnections()
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "list connections"))
		return
	}

	var data []modelEntry
	seen := make(map[string]bool)
	for _, c := range connections {
		if !c.Enabled {
			continue
		}
		prov, ok := h.registry.GetProvider(c.ID)
		if !ok {
			continue
		}
		models, err := prov.ListModels(r.Context())
		if err != nil {
			h.logger.Warn("list models failed", "connection_id", c.ID, "service_key", c.ServiceKey, "error", err)
			continue
		}
		for _, m := range models {
			key := c.ServiceKey + "/" + m
			if seen[key] {
				continue
			}
			seen[key] = true
			data = append(data, modelEntry{ID: m, Object: "model", OwnedBy: c.ServiceKey})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}

// Health handles GET /health, reporting process liveness. It does not
// reflect per-connection health — see /api/dashboard/connections for that.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	gwErr, ok := aerrors.As(err)
	if !ok {
		gwErr = aerrors.NewInternal(err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gwErr.Kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Detail:   gwErr.Message,
		Code:     string(gwErr.Kind),
		Metadata: gwErr.Metadata,
	})
}

// writeJSON is the shared response encoder for the dashboard/alerts
// handlers defined in dashboard.go and alerts.go.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
