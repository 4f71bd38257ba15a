package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/aihub/internal/store"
)

// Notifier dispatches a raised alert to an external channel. The
// dashboard channel needs no Notifier: its banner polls AlertListActive
// directly.
type Notifier interface {
	Notify(ctx context.Context, a *store.Alert) error
}

// payload is the wire shape sent to every notification channel.
type payload struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Severity     string    `json:"severity"`
	Kind         string    `json:"kind"`
	ConnectionID string    `json:"connection_id"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

func toPayload(a *store.Alert) payload {
	return payload{
		ID:           a.ID,
		Type:         "hub_alert",
		Severity:     a.Severity,
		Kind:         string(a.Kind),
		ConnectionID: a.ConnectionID,
		Message:      a.Message,
		CreatedAt:    a.CreatedAt,
	}
}

// WebhookNotifier POSTs the alert payload as JSON to a configured URL.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookNotifier) Notify(ctx context.Context, a *store.Alert) error {
	body, err := json.Marshal(toPayload(a))
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// DesktopNotifier hands the alert payload to a process-local sink (a
// channel a desktop-notification bridge can drain). It never blocks:
// a full channel silently drops the notification rather than stalling
// the alert check loop.
type DesktopNotifier struct {
	out chan<- store.Alert
}

func NewDesktopNotifier(out chan<- store.Alert) *DesktopNotifier {
	return &DesktopNotifier{out: out}
}

func (d *DesktopNotifier) Notify(ctx context.Context, a *store.Alert) error {
	select {
	case d.out <- *a:
	default:
	}
	return nil
}
