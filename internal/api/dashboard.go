package api //nolint:revive // package name is intentional

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/aihub/internal/store"
	"github.com/blueberrycongee/aihub/internal/vault"
	aerrors "github.com/blueberrycongee/aihub/pkg/errors"
	"github.com/blueberrycongee/aihub/pkg/provider"
)

// DashboardStats handles GET /api/dashboard/stats: a point-in-time
// rollup across the three budget windows plus live connection counts.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	connections, err := h.store.ListConnections()
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "list connections"))
		return
	}

	enabled := 0
	for _, c := range connections {
		if c.Enabled {
			enabled++
		}
	}

	spend := make(map[string]float64, 3)
	for _, win := range []store.Window{store.Window24h, store.Window7d, store.Window30d} {
		total, err := h.store.AggregateSpend("", win)
		if err != nil {
			h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "aggregate spend"))
			return
		}
		spend[string(win)] = total
	}

	limits, err := h.store.GetBudgetLimits()
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "get budget limits"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"connections_total":   len(connections),
		"connections_enabled": enabled,
		"spend":               spend,
		"budget_limits":       limits,
	})
}

// DashboardUsage handles GET /api/dashboard/usage?granularity=daily|weekly|monthly&since=RFC3339.
func (h *Handler) DashboardUsage(w http.ResponseWriter, r *http.Request) {
	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "daily"
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, aerrors.NewBadRequest("invalid since: "+err.Error()))
			return
		}
		since = parsed
	}

	points, err := h.store.UsageTimeseries(granularity, since)
	if err != nil {
		h.writeError(w, aerrors.NewBadRequest(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// DashboardRequests handles GET /api/dashboard/requests?limit=N&connection_id=.
func (h *Handler) DashboardRequests(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	connectionID := r.URL.Query().Get("connection_id")
	var (
		requests []*store.Request
		err      error
	)
	if connectionID != "" {
		requests, err = h.store.RecentRequestsForConnection(connectionID, limit)
	} else {
		requests, err = h.store.RecentRequests(limit)
	}
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "list requests"))
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// connectionView is the wire shape for a connection: credentials are
// replaced with vault.Mask previews, never round-tripped as plaintext.
type connectionView struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	ServiceKey          string     `json:"service_key"`
	Category            string     `json:"category"`
	BaseURL             string     `json:"base_url"`
	APIKeyMasked        string     `json:"api_key_masked,omitempty"`
	TokenMasked         string     `json:"token_masked,omitempty"`
	Enabled             bool       `json:"enabled"`
	DailyLimitUSD       float64    `json:"daily_limit_usd"`
	WeeklyLimitUSD      float64    `json:"weekly_limit_usd"`
	MonthlyLimitUSD     float64    `json:"monthly_limit_usd"`
	BudgetOverrideUntil *time.Time `json:"budget_override_until,omitempty"`
	IsDefault           bool       `json:"is_default"`
	HealthState         string     `json:"health_state"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (h *Handler) toView(c *store.Connection) connectionView {
	v := connectionView{
		ID: c.ID, Name: c.Name, ServiceKey: c.ServiceKey, Category: c.Category, BaseURL: c.BaseURL,
		Enabled: c.Enabled, DailyLimitUSD: c.DailyLimitUSD, WeeklyLimitUSD: c.WeeklyLimitUSD,
		MonthlyLimitUSD: c.MonthlyLimitUSD, BudgetOverrideUntil: c.BudgetOverrideUntil,
		IsDefault: c.IsDefault, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
		HealthState: string(h.monitor.State(c.ID)),
	}
	if c.APIKeyEnc != "" {
		if plain, err := h.vault.Decrypt(c.APIKeyEnc); err == nil {
			v.APIKeyMasked = vault.Mask(plain)
		}
	}
	if c.TokenEnc != "" {
		if plain, err := h.vault.Decrypt(c.TokenEnc); err == nil {
			v.TokenMasked = vault.Mask(plain)
		}
	}
	return v
}

// DashboardListConnections handles GET /api/dashboard/connections.
func (h *Handler) DashboardListConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.store.ListConnections()
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "list connections"))
		return
	}
	views := make([]connectionView, 0, len(connections))
	for _, c := range connections {
		views = append(views, h.toView(c))
	}
	writeJSON(w, http.StatusOK, views)
}

// connectionRequest is the inbound shape for create/update: plaintext
// credentials come in over localhost and are encrypted before touching
// the store; they are never echoed back.
type connectionRequest struct {
	ID              string  `json:"id,omitempty"`
	Name            string  `json:"name"`
	ServiceKey      string  `json:"service_key"`
	Category        string  `json:"category"`
	BaseURL         string  `json:"base_url"`
	APIKey          string  `json:"api_key,omitempty"`
	Token           string  `json:"token,omitempty"`
	CredFilePath    string  `json:"cred_file_path,omitempty"`
	Enabled         bool    `json:"enabled"`
	DailyLimitUSD   float64 `json:"daily_limit_usd"`
	WeeklyLimitUSD  float64 `json:"weekly_limit_usd"`
	MonthlyLimitUSD float64 `json:"monthly_limit_usd"`
	IsDefault       bool    `json:"is_default"`
}

// allowsPrivateBaseURL identifies the two connection families whose base
// URL is expected to point at loopback or another machine on the
// operator's own network rather than a public upstream.
func allowsPrivateBaseURL(serviceKey string) bool {
	return serviceKey == "local" || serviceKey == "custom"
}

// DashboardUpsertConnection handles POST /api/dashboard/connections
// (create) and PUT /api/dashboard/connections/{id} (update).
func (h *Handler) DashboardUpsertConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := decodeJSON(r, h.maxBodySize, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if id := r.PathValue("id"); id != "" {
		req.ID = id
	}
	if req.Name == "" || req.ServiceKey == "" {
		h.writeError(w, aerrors.NewBadRequest("name and service_key are required"))
		return
	}
	if req.BaseURL != "" {
		if err := provider.ValidateBaseURL(req.BaseURL, allowsPrivateBaseURL(req.ServiceKey)); err != nil {
			h.writeError(w, aerrors.NewBadRequest(err.Error()))
			return
		}
	}

	c := &store.Connection{
		ID: req.ID, Name: req.Name, ServiceKey: req.ServiceKey, Category: req.Category, BaseURL: req.BaseURL,
		Enabled: req.Enabled, DailyLimitUSD: req.DailyLimitUSD, WeeklyLimitUSD: req.WeeklyLimitUSD,
		MonthlyLimitUSD: req.MonthlyLimitUSD, IsDefault: req.IsDefault,
	}

	if req.ID != "" {
		existing, err := h.store.GetConnection(req.ID)
		if err != nil {
			h.writeError(w, mapStoreErr(err))
			return
		}
		c.APIKeyEnc, c.TokenEnc, c.CredFilePathEnc = existing.APIKeyEnc, existing.TokenEnc, existing.CredFilePathEnc
	}

	var encErr error
	if req.APIKey != "" {
		c.APIKeyEnc, encErr = h.vault.Encrypt(req.APIKey)
	}
	if encErr == nil && req.Token != "" {
		c.TokenEnc, encErr = h.vault.Encrypt(req.Token)
	}
	if encErr == nil && req.CredFilePath != "" {
		c.CredFilePathEnc, encErr = h.vault.Encrypt(req.CredFilePath)
	}
	if encErr != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, encErr, "encrypt credentials"))
		return
	}

	saved, err := h.store.UpsertConnection(c)
	if err != nil {
		h.writeError(w, mapStoreErr(err))
		return
	}

	if req.ID != "" {
		h.registry.Invalidate(saved.ID)
	}

	writeJSON(w, http.StatusOK, h.toView(saved))
}

// DashboardDeleteConnection handles DELETE /api/dashboard/connections/{id}.
func (h *Handler) DashboardDeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeleteConnectionCascade(id); err != nil {
		h.writeError(w, mapStoreErr(err))
		return
	}
	h.registry.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

// DashboardToggleConnection handles POST /api/dashboard/connections/{id}/toggle.
func (h *Handler) DashboardToggleConnection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := h.store.GetConnection(id)
	if err != nil {
		h.writeError(w, mapStoreErr(err))
		return
	}
	if err := h.store.ToggleConnection(id, !c.Enabled); err != nil {
		h.writeError(w, mapStoreErr(err))
		return
	}
	c.Enabled = !c.Enabled
	writeJSON(w, http.StatusOK, h.toView(c))
}

// DashboardGetBudget handles GET /api/dashboard/budget.
func (h *Handler) DashboardGetBudget(w http.ResponseWriter, r *http.Request) {
	limits, err := h.store.GetBudgetLimits()
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "get budget limits"))
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

// DashboardPutBudget handles PUT /api/dashboard/budget.
func (h *Handler) DashboardPutBudget(w http.ResponseWriter, r *http.Request) {
	var limits store.BudgetLimit
	if err := decodeJSON(r, h.maxBodySize, &limits); err != nil {
		h.writeError(w, err)
		return
	}
	saved, err := h.store.PutBudgetLimits(&limits)
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "put budget limits"))
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DashboardListCosts handles GET /api/dashboard/costs?connection_id=.
func (h *Handler) DashboardListCosts(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListCostConfigs(r.URL.Query().Get("connection_id"))
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "list cost configs"))
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

// DashboardUpsertCost handles POST /api/dashboard/costs.
func (h *Handler) DashboardUpsertCost(w http.ResponseWriter, r *http.Request) {
	var cfg store.CostConfig
	if err := decodeJSON(r, h.maxBodySize, &cfg); err != nil {
		h.writeError(w, err)
		return
	}
	if cfg.ModelPattern == "" {
		h.writeError(w, aerrors.NewBadRequest("model_pattern is required"))
		return
	}
	saved, err := h.store.UpsertCostConfig(&cfg)
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "upsert cost config"))
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DashboardDeleteCost handles DELETE /api/dashboard/costs/{id}.
func (h *Handler) DashboardDeleteCost(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCostConfig(r.PathValue("id")); err != nil {
		h.writeError(w, mapStoreErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mapStoreErr(err error) error {
	if err == store.ErrNotFound {
		return aerrors.New(aerrors.KindBadRequest, "not found")
	}
	return aerrors.Wrap(aerrors.KindInternal, err, "store operation failed")
}

func decodeJSON(r *http.Request, maxBodySize int64, v any) error {
	limited := io.LimitReader(r.Body, maxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return aerrors.NewBadRequest("failed to read request body")
	}
	defer func() { _ = r.Body.Close() }()
	if int64(len(body)) > maxBodySize {
		return aerrors.NewBadRequest("request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return aerrors.NewBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}
