package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        id, entity_id, rule_id, fired_at, score, band, message, payload, status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (entity_id, rule_id, fired_at) DO NOTHING;`

	listRecentAlertsSQL = `SELECT
        id, entity_id, rule_id, fired_at, score, band, message, payload, status, created_at
    FROM alerts
    ORDER BY fired_at DESC
    LIMIT $1;`

	listEntityAlertsSQL = `SELECT
        id, entity_id, rule_id, fired_at, score, band, message, payload, status, created_at
    FROM alerts
    WHERE entity_id = $1
    ORDER BY fired_at DESC
    LIMIT $2;`

	resolveAlertsSQL = `UPDATE alerts
    SET status = 'resolved'
    WHERE entity_id = $1 AND rule_id = $2 AND status = 'active';`

	lastFiredSQL = `SELECT entity_id, rule_id, MAX(fired_at)
    FROM alerts
    WHERE fired_at > $1
    GROUP BY entity_id, rule_id;`
)

// AlertStore defines operations for alert persistence.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (inserted bool, err error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListEntityAlerts(ctx context.Context, entityID string, limit int) ([]AlertRecord, error)
	ResolveAlerts(ctx context.Context, entityID, ruleID string) (int64, error)
	LastFires(ctx context.Context, since time.Time) ([]RuleFire, error)
}

// InsertAlert persists an alert emission. Idempotent: a record with the
// same (entity, rule, fired_at) is silently skipped and inserted=false.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	status := alert.Status
	if status == "" {
		status = StatusActive
	}

	tag, execErr := pool.Exec(ctx, insertAlertSQL,
		alert.ID,
		alert.EntityID,
		alert.RuleID,
		alert.FiredAt,
		alert.Score,
		alert.Band,
		alert.Message,
		[]byte(alert.Payload),
		status,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert alert: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListRecentAlerts lists the most recently fired alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID, &rec.EntityID, &rec.RuleID, &rec.FiredAt,
			&rec.Score, &rec.Band, &rec.Message, &rec.Payload,
			&rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// ListEntityAlerts lists the most recent alerts for one entity.
func (s *Store) ListEntityAlerts(ctx context.Context, entityID string, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEntityAlertsSQL, entityID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list entity alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID, &rec.EntityID, &rec.RuleID, &rec.FiredAt,
			&rec.Score, &rec.Band, &rec.Message, &rec.Payload,
			&rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// ResolveAlerts marks the active alerts of an (entity, rule) pair as
// resolved and reports how many rows changed.
func (s *Store) ResolveAlerts(ctx context.Context, entityID, ruleID string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, resolveAlertsSQL, entityID, ruleID)
	if execErr != nil {
		return 0, fmt.Errorf("resolve alerts: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// LastFires returns the latest fire instant per (entity, rule) since
// the given time, for warm-starting gate debounce anchors.
func (s *Store) LastFires(ctx context.Context, since time.Time) ([]RuleFire, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, lastFiredSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list last fires: %w", queryErr)
	}
	defer rows.Close()

	fires := make([]RuleFire, 0)
	for rows.Next() {
		var f RuleFire
		if err := rows.Scan(&f.EntityID, &f.RuleID, &f.FiredAt); err != nil {
			return nil, err
		}
		fires = append(fires, f)
	}
	return fires, rows.Err()
}
