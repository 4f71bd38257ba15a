package api //nolint:revive // package name is intentional

import (
	"net/http"

	"github.com/blueberrycongee/aihub/internal/metrics"
	"github.com/blueberrycongee/aihub/internal/observability"
)

// RegisterRoutes registers every route the gateway serves onto mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /v1/models", h.ListModels)
	mux.HandleFunc("POST /v1/chat/completions", h.ChatCompletions)

	mux.HandleFunc("GET /api/dashboard/stats", h.DashboardStats)
	mux.HandleFunc("GET /api/dashboard/usage", h.DashboardUsage)
	mux.HandleFunc("GET /api/dashboard/requests", h.DashboardRequests)

	mux.HandleFunc("GET /api/dashboard/connections", h.DashboardListConnections)
	mux.HandleFunc("POST /api/dashboard/connections", h.DashboardUpsertConnection)
	mux.HandleFunc("PUT /api/dashboard/connections/{id}", h.DashboardUpsertConnection)
	mux.HandleFunc("DELETE /api/dashboard/connections/{id}", h.DashboardDeleteConnection)
	mux.HandleFunc("POST /api/dashboard/connections/{id}/toggle", h.DashboardToggleConnection)

	mux.HandleFunc("GET /api/dashboard/budget", h.DashboardGetBudget)
	mux.HandleFunc("PUT /api/dashboard/budget", h.DashboardPutBudget)

	mux.HandleFunc("GET /api/dashboard/costs", h.DashboardListCosts)
	mux.HandleFunc("POST /api/dashboard/costs", h.DashboardUpsertCost)
	mux.HandleFunc("DELETE /api/dashboard/costs/{id}", h.DashboardDeleteCost)

	mux.HandleFunc("GET /api/alerts/active", h.ListActiveAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/dismiss", h.DismissAlert)
}

// Middleware wraps a handler with the gateway's standard request
// middleware stack: correlation id propagation, then metrics.
func Middleware(next http.Handler) http.Handler {
	return observability.RequestIDMiddleware(metrics.HTTPMiddleware(next))
}
