package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UpsertCostConfig inserts or replaces a (connection_id, model_pattern)
// pricing row.
func (s *Store) UpsertCostConfig(c *CostConfig) (*CostConfig, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := nowRFC3339()
	_, err := s.db.Exec(`INSERT INTO cost_configs (id, connection_id, model_pattern, input_usd_per_million, output_usd_per_million, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(connection_id, model_pattern) DO UPDATE SET
			input_usd_per_million = excluded.input_usd_per_million,
			output_usd_per_million = excluded.output_usd_per_million,
			updated_at = excluded.updated_at`,
		c.ID, c.ConnectionID, c.ModelPattern, c.InputUSDPerMillion, c.OutputUSDPerMillion, now)
	if err != nil {
		return nil, fmt.Errorf("upsert cost config: %w", err)
	}
	c.UpdatedAt = parseTime(now)
	return c, nil
}

// DeleteCostConfig removes a single cost config row by id.
func (s *Store) DeleteCostConfig(id string) error {
	res, err := s.db.Exec(`DELETE FROM cost_configs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCostConfigs lists every pricing row for a connection. An empty
// connectionID lists every row across all connections.
func (s *Store) ListCostConfigs(connectionID string) ([]*CostConfig, error) {
	query := `SELECT id, connection_id, model_pattern, input_usd_per_million, output_usd_per_million, updated_at FROM cost_configs`
	args := []any{}
	if connectionID != "" {
		query += ` WHERE connection_id = ?`
		args = append(args, connectionID)
	}
	query += ` ORDER BY model_pattern`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*CostConfig
	for rows.Next() {
		var c CostConfig
		var updatedAt string
		if err := rows.Scan(&c.ID, &c.ConnectionID, &c.ModelPattern, &c.InputUSDPerMillion, &c.OutputUSDPerMillion, &updatedAt); err != nil {
			return nil, err
		}
		c.UpdatedAt = parseTime(updatedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// FindCostConfig resolves the pricing row that applies to a model on a
// connection: an exact model_pattern match wins outright; otherwise the
// longest matching "prefix*" wildcard wins. Returns ErrNotFound if no
// row matches.
func (s *Store) FindCostConfig(connectionID, model string) (*CostConfig, error) {
	rows, err := s.ListCostConfigs(connectionID)
	if err != nil {
		return nil, err
	}

	modelLower := strings.ToLower(model)

	for _, c := range rows {
		if strings.EqualFold(c.ModelPattern, model) {
			return c, nil
		}
	}

	var best *CostConfig
	var bestPrefixLen int
	for _, c := range rows {
		prefix, ok := strings.CutSuffix(c.ModelPattern, "*")
		if !ok {
			continue
		}
		prefix = strings.ToLower(prefix)
		if strings.HasPrefix(modelLower, prefix) && len(prefix) > bestPrefixLen {
			best = c
			bestPrefixLen = len(prefix)
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}
