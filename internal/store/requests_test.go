package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRequestAndRecentRequestsOrdering(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.InsertRequest(&Request{Model: "gpt-4o", Provider: "openai", Success: true, CreatedAt: time.Now().UTC().Add(-time.Minute)}))
	require.NoError(t, s.InsertRequest(&Request{Model: "claude-3-haiku", Provider: "anthropic", Success: false, Error: "upstream_transient", CreatedAt: time.Now().UTC()}))

	recent, err := s.RecentRequests(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "claude-3-haiku", recent[0].Model)
	assert.False(t, recent[0].Success)
	assert.Equal(t, "gpt-4o", recent[1].Model)
}

func TestRecentRequestsDefaultsLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertRequest(&Request{Model: "gpt-4o", Provider: "openai", Success: true}))
	}
	recent, err := s.RecentRequests(0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestInsertApiCallDefaultsMetadata(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertApiCall(&ApiCall{ServiceKey: "github", Operation: "list_repos", Endpoint: "/user/repos", Method: "GET", StatusCode: 200, Success: true}))
}

func TestUsageTimeseriesBucketsByDay(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.InsertRequest(&Request{Model: "gpt-4o", Provider: "openai", Success: true, CostUSD: 1, PromptTokens: 100, CompletionTokens: 50, CreatedAt: now}))
	require.NoError(t, s.InsertRequest(&Request{Model: "gpt-4o", Provider: "openai", Success: true, CostUSD: 2, PromptTokens: 200, CompletionTokens: 80, CreatedAt: now}))

	points, err := s.UsageTimeseries("daily", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 2, points[0].RequestCount)
	assert.Equal(t, 3.0, points[0].CostUSD)
	assert.Equal(t, int64(300), points[0].PromptTokens)
}

func TestUsageTimeseriesRejectsUnknownGranularity(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UsageTimeseries("hourly", time.Now().UTC())
	assert.Error(t, err)
}

func TestRecentRequestsForConnectionFiltersByConnection(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertRequest(&Request{Model: "gpt-4o", Provider: "openai", ConnectionID: "a", Success: true}))
	require.NoError(t, s.InsertRequest(&Request{Model: "gpt-4o", Provider: "openai", ConnectionID: "b", Success: false}))

	recent, err := s.RecentRequestsForConnection("a", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a", recent[0].ConnectionID)
}

func TestRecentSuccessfulLatenciesSkipsFailuresAndOffset(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i, latency := range []int64{100, 200, 300, 9999} {
		success := latency != 9999
		require.NoError(t, s.InsertRequest(&Request{
			Model: "gpt-4o", Provider: "openai", ConnectionID: "a",
			Success: success, LatencyMS: latency,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	latencies, err := s.RecentSuccessfulLatencies("a", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 200, 100}, latencies)

	latencies, err = s.RecentSuccessfulLatencies("a", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{200, 100}, latencies)
}
