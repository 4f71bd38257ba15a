package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertUpsertActive raises an alert, deduplicated by (connection_id,
// kind): if an unresolved, undismissed alert of the same kind already
// exists for the connection its message/metadata are refreshed in
// place rather than inserting a duplicate row. Returns the live row
// and whether it was newly created.
func (s *Store) AlertUpsertActive(a *Alert) (*Alert, bool, error) {
	existing, err := s.activeAlert(a.ConnectionID, a.Kind)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if err == nil {
		_, execErr := s.db.Exec(`UPDATE alerts SET message=?, severity=?, metadata_json=? WHERE id=?`,
			a.Message, a.Severity, a.MetadataJSON, existing.ID)
		if execErr != nil {
			return nil, false, fmt.Errorf("refresh active alert: %w", execErr)
		}
		existing.Message = a.Message
		existing.Severity = a.Severity
		existing.MetadataJSON = a.MetadataJSON
		return existing, false, nil
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.MetadataJSON == "" {
		a.MetadataJSON = "{}"
	}
	_, execErr := s.db.Exec(`INSERT INTO alerts (id, created_at, resolved_at, dismissed_at, connection_id, kind, severity, message, metadata_json)
		VALUES (?,?,NULL,NULL,?,?,?,?,?)`,
		a.ID, a.CreatedAt.UTC().Format(time.RFC3339Nano), a.ConnectionID, a.Kind, a.Severity, a.Message, a.MetadataJSON)
	if execErr != nil {
		return nil, false, fmt.Errorf("insert alert: %w", execErr)
	}
	return a, true, nil
}

func (s *Store) activeAlert(connectionID string, kind AlertKind) (*Alert, error) {
	row := s.db.QueryRow(`SELECT id, created_at, resolved_at, dismissed_at, connection_id, kind, severity, message, metadata_json
		FROM alerts WHERE connection_id = ? AND kind = ? AND resolved_at IS NULL AND dismissed_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, connectionID, kind)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// AlertResolve marks an alert resolved (the triggering condition
// cleared on its own, e.g. health returned to HEALTHY).
func (s *Store) AlertResolve(id string) error {
	res, err := s.db.Exec(`UPDATE alerts SET resolved_at=? WHERE id=? AND resolved_at IS NULL`, nowRFC3339(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AlertDismiss marks an alert dismissed (an operator acknowledged it
// without the underlying condition necessarily having cleared).
func (s *Store) AlertDismiss(id string) error {
	res, err := s.db.Exec(`UPDATE alerts SET dismissed_at=? WHERE id=? AND dismissed_at IS NULL`, nowRFC3339(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AlertListActive lists every unresolved, undismissed alert, newest first.
func (s *Store) AlertListActive() ([]*Alert, error) {
	rows, err := s.db.Query(`SELECT id, created_at, resolved_at, dismissed_at, connection_id, kind, severity, message, metadata_json
		FROM alerts WHERE resolved_at IS NULL AND dismissed_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(row scanner) (*Alert, error) {
	var a Alert
	var createdAt string
	var resolvedAt, dismissedAt sql.NullString
	var kind string

	err := row.Scan(&a.ID, &createdAt, &resolvedAt, &dismissedAt, &a.ConnectionID, &kind, &a.Severity, &a.Message, &a.MetadataJSON)
	if err != nil {
		return nil, err
	}
	a.Kind = AlertKind(kind)
	a.CreatedAt = parseTime(createdAt)
	a.ResolvedAt = parseTimePtr(resolvedAt)
	a.DismissedAt = parseTimePtr(dismissedAt)
	return &a, nil
}
