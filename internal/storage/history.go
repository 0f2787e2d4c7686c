package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	insertHistorySQL = `INSERT INTO score_history (
        entity_id, observed_at, liquidity, holders,
        fresh_pct, sniper_pct, insider_pct, top10_pct, score
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (entity_id, observed_at) DO NOTHING;`

	entityHistorySQL = `SELECT
        entity_id, observed_at, liquidity, holders,
        fresh_pct, sniper_pct, insider_pct, top10_pct, score, created_at
    FROM score_history
    WHERE entity_id = $1
    ORDER BY observed_at;`

	historyBetweenSQL = `SELECT
        entity_id, observed_at, liquidity, holders,
        fresh_pct, sniper_pct, insider_pct, top10_pct, score, created_at
    FROM score_history
    WHERE entity_id = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	lastHistoryAtSQL = `SELECT MAX(observed_at) FROM score_history WHERE entity_id = $1;`
)

// HistoryStore defines operations for score history persistence.
type HistoryStore interface {
	InsertHistory(ctx context.Context, entry ScoreHistoryEntry) (inserted bool, err error)
	EntityHistory(ctx context.Context, entityID string) ([]ScoreHistoryEntry, error)
	HistoryBetween(ctx context.Context, entityID string, from, to time.Time) ([]ScoreHistoryEntry, error)
	LastHistoryAt(ctx context.Context, entityID string) (time.Time, error)
}

// InsertHistory appends one score history point. Idempotent under the
// (entity, observed_at) primary key; duplicates report inserted=false.
func (s *Store) InsertHistory(ctx context.Context, entry ScoreHistoryEntry) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	tag, execErr := pool.Exec(ctx, insertHistorySQL,
		entry.EntityID,
		entry.ObservedAt,
		entry.Liquidity.String(),
		entry.Holders,
		entry.FreshPct,
		entry.SniperPct,
		entry.InsiderPct,
		entry.Top10Pct,
		entry.Score,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert score history: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// EntityHistory returns the full recorded history of one entity in
// chronological order.
func (s *Store) EntityHistory(ctx context.Context, entityID string) ([]ScoreHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, entityHistorySQL, entityID)
	if queryErr != nil {
		return nil, fmt.Errorf("entity history: %w", queryErr)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// HistoryBetween returns history points inside [from, to).
func (s *Store) HistoryBetween(ctx context.Context, entityID string, from, to time.Time) ([]ScoreHistoryEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, historyBetweenSQL, entityID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("history between: %w", queryErr)
	}
	defer rows.Close()
	return scanHistory(rows)
}

// LastHistoryAt returns the most recent recorded observation time for
// an entity, or the zero time if none exists.
func (s *Store) LastHistoryAt(ctx context.Context, entityID string) (time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, err
	}
	var last *time.Time
	if scanErr := pool.QueryRow(ctx, lastHistoryAtSQL, entityID).Scan(&last); scanErr != nil {
		return time.Time{}, fmt.Errorf("last history at: %w", scanErr)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

func scanHistory(rows pgx.Rows) ([]ScoreHistoryEntry, error) {
	entries := make([]ScoreHistoryEntry, 0)
	for rows.Next() {
		var (
			e            ScoreHistoryEntry
			liquidityStr string
		)
		if err := rows.Scan(
			&e.EntityID, &e.ObservedAt, &liquidityStr, &e.Holders,
			&e.FreshPct, &e.SniperPct, &e.InsiderPct, &e.Top10Pct,
			&e.Score, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		liquidity, err := decimal.NewFromString(liquidityStr)
		if err != nil {
			return nil, fmt.Errorf("parse liquidity: %w", err)
		}
		e.Liquidity = liquidity
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
