package metrics

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordRequestSuccess(t *testing.T) {
	RecordRequest("gpt-4o", "openai", "conn-1", true, 250*time.Millisecond, 100, 50, 0.002)

	require.Equal(t, float64(1), testutil.ToFloat64(RequestsTotal.WithLabelValues("gpt-4o", "openai", "conn-1", "success")))
	require.Equal(t, float64(100), testutil.ToFloat64(TokensTotal.WithLabelValues("gpt-4o", "openai", "prompt")))
	require.Equal(t, float64(50), testutil.ToFloat64(TokensTotal.WithLabelValues("gpt-4o", "openai", "completion")))
	require.InDelta(t, 0.002, testutil.ToFloat64(CostUSDTotal.WithLabelValues("gpt-4o", "openai", "conn-1")), 1e-9)
}

func TestRecordRequestFailureSkipsTokensAndCost(t *testing.T) {
	RecordRequest("gpt-4o", "openai", "conn-2", false, 10*time.Millisecond, 0, 0, 0)

	require.Equal(t, float64(1), testutil.ToFloat64(RequestsTotal.WithLabelValues("gpt-4o", "openai", "conn-2", "error")))
}

func TestHTTPMiddlewareRecordsDuration(t *testing.T) {
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	count := testutil.CollectAndCount(httpRequestDuration)
	require.Greater(t, count, 0)
}

func TestUpdateDBPoolStats(t *testing.T) {
	UpdateDBPoolStats(sql.DBStats{InUse: 2, Idle: 6, MaxOpenConnections: 8})

	require.Equal(t, float64(2), testutil.ToFloat64(DBPoolConnections.WithLabelValues("active")))
	require.Equal(t, float64(6), testutil.ToFloat64(DBPoolConnections.WithLabelValues("idle")))
	require.Equal(t, float64(8), testutil.ToFloat64(DBPoolConnections.WithLabelValues("max")))
}
