package store

import (
	"fmt"
	"time"
)

// GetBudgetLimits returns the singleton global default budget row.
func (s *Store) GetBudgetLimits() (*BudgetLimit, error) {
	row := s.db.QueryRow(`SELECT daily_limit_usd, weekly_limit_usd, monthly_limit_usd, updated_at FROM budget_limits WHERE id = 1`)
	var b BudgetLimit
	var updatedAt string
	if err := row.Scan(&b.DailyLimitUSD, &b.WeeklyLimitUSD, &b.MonthlyLimitUSD, &updatedAt); err != nil {
		return nil, err
	}
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

// PutBudgetLimits overwrites the singleton global default budget row.
func (s *Store) PutBudgetLimits(b *BudgetLimit) (*BudgetLimit, error) {
	now := nowRFC3339()
	_, err := s.db.Exec(`UPDATE budget_limits SET daily_limit_usd=?, weekly_limit_usd=?, monthly_limit_usd=?, updated_at=? WHERE id=1`,
		b.DailyLimitUSD, b.WeeklyLimitUSD, b.MonthlyLimitUSD, now)
	if err != nil {
		return nil, fmt.Errorf("put budget limits: %w", err)
	}
	b.UpdatedAt = parseTime(now)
	return b, nil
}

// AggregateSpend sums cost_usd across requests and api_calls within the
// rolling window ending now. An empty connectionID aggregates across
// every connection (api_calls rows, which have no connection_id, are
// always included in the global total).
func (s *Store) AggregateSpend(connectionID string, window Window) (float64, error) {
	since := time.Now().UTC().Add(-window.Duration()).Format(time.RFC3339Nano)

	var requestsSpend float64
	requestsQuery := `SELECT COALESCE(SUM(cost_usd), 0) FROM requests WHERE created_at > ?`
	args := []any{since}
	if connectionID != "" {
		requestsQuery += ` AND connection_id = ?`
		args = append(args, connectionID)
	}
	if err := s.db.QueryRow(requestsQuery, args...).Scan(&requestsSpend); err != nil {
		return 0, fmt.Errorf("aggregate request spend: %w", err)
	}

	if connectionID != "" {
		return requestsSpend, nil
	}

	var apiCallsSpend float64
	if err := s.db.QueryRow(`SELECT COALESCE(SUM(cost_usd), 0) FROM api_calls WHERE created_at > ?`, since).Scan(&apiCallsSpend); err != nil {
		return 0, fmt.Errorf("aggregate api call spend: %w", err)
	}

	return requestsSpend + apiCallsSpend, nil
}
