package api //nolint:revive // package name is intentional

import (
	"net/http"

	aerrors "github.com/blueberrycongee/aihub/pkg/errors"
)

// ListActiveAlerts handles GET /api/alerts/active.
func (h *Handler) ListActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.store.AlertListActive()
	if err != nil {
		h.writeError(w, aerrors.Wrap(aerrors.KindInternal, err, "list active alerts"))
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// DismissAlert handles POST /api/alerts/{id}/dismiss.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.store.AlertDismiss(r.PathValue("id")); err != nil {
		h.writeError(w, mapStoreErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
