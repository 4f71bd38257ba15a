package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"
)

// statusRecorder wraps http.ResponseWriter to capture the status code
// written by the handler it wraps.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// HTTPMiddleware records a request_duration_seconds observation for
// every inbound HTTP request, labeled by path rather than model — the
// per-model RequestDuration/RequestsTotal series are recorded directly
// by the pipeline, which knows the resolved model and provider.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		httpRequestDuration.WithLabelValues(r.URL.Path, strconv.Itoa(recorder.statusCode)).Observe(time.Since(start).Seconds())
	})
}

// RecordRequest records the outcome of a single pipeline Complete call.
func RecordRequest(model, provider, connectionID string, success bool, latency time.Duration, promptTokens, completionTokens int, costUSD float64) {
	status := "success"
	if !success {
		status = "error"
	}
	RequestsTotal.WithLabelValues(model, provider, connectionID, status).Inc()
	RequestDuration.WithLabelValues(model, provider).Observe(latency.Seconds())
	if promptTokens > 0 {
		TokensTotal.WithLabelValues(model, provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		TokensTotal.WithLabelValues(model, provider, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		CostUSDTotal.WithLabelValues(model, provider, connectionID).Add(costUSD)
	}
}

// UpdateDBPoolStats refreshes the db_pool_connections gauge from the
// embedded store's live sql.DBStats snapshot.
func UpdateDBPoolStats(stats sql.DBStats) {
	DBPoolConnections.WithLabelValues("active").Set(float64(stats.InUse))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxOpenConnections))
}
