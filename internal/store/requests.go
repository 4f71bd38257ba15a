package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertRequest appends a completed LLM call row. Requests are never
// updated or deleted individually; history is pruned, if at all, by a
// separate retention job outside this package.
func (s *Store) InsertRequest(r *Request) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO requests
		(id, created_at, model, provider, connection_id, prompt_tokens, completion_tokens, cost_usd, latency_ms, success, error, workflow_name)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.CreatedAt.UTC().Format(time.RFC3339Nano), r.Model, r.Provider, r.ConnectionID,
		r.PromptTokens, r.CompletionTokens, r.CostUSD, r.LatencyMS, boolToInt(r.Success), r.Error, r.WorkflowName)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// InsertApiCall appends a completed non-LLM upstream call row.
func (s *Store) InsertApiCall(a *ApiCall) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.MetadataJSON == "" {
		a.MetadataJSON = "{}"
	}
	_, err := s.db.Exec(`INSERT INTO api_calls
		(id, created_at, service_key, operation, endpoint, method, status_code, latency_ms, cost_usd, metadata_json, success, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.CreatedAt.UTC().Format(time.RFC3339Nano), a.ServiceKey, a.Operation, a.Endpoint, a.Method,
		a.StatusCode, a.LatencyMS, a.CostUSD, a.MetadataJSON, boolToInt(a.Success), a.Error)
	if err != nil {
		return fmt.Errorf("insert api call: %w", err)
	}
	return nil
}

// RecentRequests returns the most recent requests, newest first.
func (s *Store) RecentRequests(limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, created_at, model, provider, connection_id, prompt_tokens, completion_tokens, cost_usd, latency_ms, success, error, workflow_name
		FROM requests ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Request
	for rows.Next() {
		var r Request
		var createdAt string
		var success int
		if err := rows.Scan(&r.ID, &createdAt, &r.Model, &r.Provider, &r.ConnectionID, &r.PromptTokens,
			&r.CompletionTokens, &r.CostUSD, &r.LatencyMS, &success, &r.Error, &r.WorkflowName); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(createdAt)
		r.Success = success != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

// RecentRequestsForConnection returns the most recent requests for a
// single connection, newest first.
func (s *Store) RecentRequestsForConnection(connectionID string, limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`SELECT id, created_at, model, provider, connection_id, prompt_tokens, completion_tokens, cost_usd, latency_ms, success, error, workflow_name
		FROM requests WHERE connection_id = ? ORDER BY created_at DESC LIMIT ?`, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Request
	for rows.Next() {
		var r Request
		var createdAt string
		var success int
		if err := rows.Scan(&r.ID, &createdAt, &r.Model, &r.Provider, &r.ConnectionID, &r.PromptTokens,
			&r.CompletionTokens, &r.CostUSD, &r.LatencyMS, &success, &r.Error, &r.WorkflowName); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(createdAt)
		r.Success = success != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

// RecentSuccessfulLatencies returns up to limit latency_ms values from
// the most recent successful requests for a connection, newest first,
// skipping the first `offset` such requests (used to separate a recent
// sample window from the baseline window that precedes it).
func (s *Store) RecentSuccessfulLatencies(connectionID string, offset, limit int) ([]int64, error) {
	rows, err := s.db.Query(`SELECT latency_ms FROM requests
		WHERE connection_id = ? AND success = 1
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, connectionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UsagePoint is one bucket of the usage timeseries.
type UsagePoint struct {
	BucketStart      time.Time
	RequestCount     int
	CostUSD          float64
	PromptTokens     int64
	CompletionTokens int64
}

// UsageTimeseries buckets request spend and volume by day, week, or
// month over the period starting at since and ending now. Buckets with
// no requests are omitted rather than zero-filled; callers that need a
// dense series fill the gaps themselves.
func (s *Store) UsageTimeseries(granularity string, since time.Time) ([]UsagePoint, error) {
	bucketExpr, err := bucketExprFor(granularity)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s AS bucket, COUNT(*), COALESCE(SUM(cost_usd),0), COALESCE(SUM(prompt_tokens),0), COALESCE(SUM(completion_tokens),0)
		FROM requests WHERE created_at > ? GROUP BY bucket ORDER BY bucket`, bucketExpr),
		since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("usage timeseries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []UsagePoint
	for rows.Next() {
		var bucket string
		var p UsagePoint
		if err := rows.Scan(&bucket, &p.RequestCount, &p.CostUSD, &p.PromptTokens, &p.CompletionTokens); err != nil {
			return nil, err
		}
		t, parseErr := time.Parse("2006-01-02", bucket)
		if parseErr != nil {
			t, parseErr = time.Parse("2006-01-02 00:00:00", bucket)
			if parseErr != nil {
				return nil, fmt.Errorf("parse bucket %q: %w", bucket, parseErr)
			}
		}
		p.BucketStart = t.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func bucketExprFor(granularity string) (string, error) {
	switch granularity {
	case "daily":
		return `date(created_at)`, nil
	case "weekly":
		return `date(created_at, 'weekday 0', '-6 days')`, nil
	case "monthly":
		return `date(created_at, 'start of month')`, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", granularity)
	}
}
