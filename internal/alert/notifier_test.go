package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/aihub/internal/store"
)

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), &store.Alert{ID: "a1", Kind: store.AlertConsecutiveErrors, Severity: "error", Message: "boom"})
	require.NoError(t, err)
	assert.Contains(t, string(gotBody), "a1")
}

func TestWebhookNotifierErrorsOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Notify(context.Background(), &store.Alert{ID: "a1"})
	assert.Error(t, err)
}

func TestDesktopNotifierDropsWhenChannelFull(t *testing.T) {
	ch := make(chan store.Alert) // unbuffered, nothing draining it
	n := NewDesktopNotifier(ch)
	err := n.Notify(context.Background(), &store.Alert{ID: "a1"})
	assert.NoError(t, err)
}
