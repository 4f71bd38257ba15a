package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// UpsertConnection inserts a new connection (assigning an id if empty)
// or updates an existing one in place. updated_at is always refreshed;
// created_at is preserved on update.
func (s *Store) UpsertConnection(c *Connection) (*Connection, error) {
	now := nowRFC3339()
	if c.ID == "" {
		c.ID = uuid.NewString()
		c.CreatedAt = parseTime(now)
		_, err := s.db.Exec(`INSERT INTO connections
			(id, name, service_key, category, base_url, api_key_enc, token_enc, cred_file_path_enc,
			 enabled, daily_limit_usd, weekly_limit_usd, monthly_limit_usd, budget_override_until,
			 is_default, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			c.ID, c.Name, c.ServiceKey, c.Category, c.BaseURL, c.APIKeyEnc, c.TokenEnc, c.CredFilePathEnc,
			boolToInt(c.Enabled), c.DailyLimitUSD, c.WeeklyLimitUSD, c.MonthlyLimitUSD, timePtrToNullString(c.BudgetOverrideUntil),
			boolToInt(c.IsDefault), now, now)
		if err != nil {
			return nil, fmt.Errorf("insert connection: %w", err)
		}
		c.UpdatedAt = parseTime(now)
		return c, nil
	}

	res, err := s.db.Exec(`UPDATE connections SET
			name=?, service_key=?, category=?, base_url=?, api_key_enc=?, token_enc=?, cred_file_path_enc=?,
			enabled=?, daily_limit_usd=?, weekly_limit_usd=?, monthly_limit_usd=?, budget_override_until=?,
			is_default=?, updated_at=?
		WHERE id=?`,
		c.Name, c.ServiceKey, c.Category, c.BaseURL, c.APIKeyEnc, c.TokenEnc, c.CredFilePathEnc,
		boolToInt(c.Enabled), c.DailyLimitUSD, c.WeeklyLimitUSD, c.MonthlyLimitUSD, timePtrToNullString(c.BudgetOverrideUntil),
		boolToInt(c.IsDefault), now, c.ID)
	if err != nil {
		return nil, fmt.Errorf("update connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	c.UpdatedAt = parseTime(now)
	return c, nil
}

// DeleteConnectionCascade deletes a connection and, in the same
// transaction, every CostConfig row referencing it.
func (s *Store) DeleteConnectionCascade(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM cost_configs WHERE connection_id = ?`, id); err != nil {
		return fmt.Errorf("delete cost configs: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ToggleConnection flips enabled without touching any other field.
// Disable then re-enable restores the identical row except updated_at.
func (s *Store) ToggleConnection(id string, enabled bool) error {
	res, err := s.db.Exec(`UPDATE connections SET enabled=?, updated_at=? WHERE id=?`, boolToInt(enabled), nowRFC3339(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBudgetOverride sets budget_override_until on a connection.
func (s *Store) SetBudgetOverride(id string, until *time.Time) error {
	res, err := s.db.Exec(`UPDATE connections SET budget_override_until=?, updated_at=? WHERE id=?`,
		timePtrToNullString(until), nowRFC3339(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetConnection fetches a single connection by id.
func (s *Store) GetConnection(id string) (*Connection, error) {
	row := s.db.QueryRow(connectionSelect+` WHERE id = ?`, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListConnections returns every connection, enabled or not (callers
// filter for router/health-monitor purposes).
func (s *Store) ListConnections() ([]*Connection, error) {
	rows, err := s.db.Query(connectionSelect + ` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const connectionSelect = `SELECT id, name, service_key, category, base_url, api_key_enc, token_enc, cred_file_path_enc,
	enabled, daily_limit_usd, weekly_limit_usd, monthly_limit_usd, budget_override_until, is_default, created_at, updated_at
	FROM connections`

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*Connection, error) {
	var c Connection
	var enabled, isDefault int
	var overrideUntil sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.Name, &c.ServiceKey, &c.Category, &c.BaseURL, &c.APIKeyEnc, &c.TokenEnc, &c.CredFilePathEnc,
		&enabled, &c.DailyLimitUSD, &c.WeeklyLimitUSD, &c.MonthlyLimitUSD, &overrideUntil, &isDefault, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.Enabled = enabled != 0
	c.IsDefault = isDefault != 0
	c.BudgetOverrideUntil = parseTimePtr(overrideUntil)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
