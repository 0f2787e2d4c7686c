package source

import (
	"context"

	"token-health-alerts/internal/scoring"
)

// Source supplies one logical metric snapshot per monitored entity per
// tick. Timestamps must be non-decreasing per entity; the engine drops
// violations.
type Source interface {
	Fetch(ctx context.Context) ([]scoring.Snapshot, error)
}

// Static serves a fixed batch of snapshots. Used by the simulate
// command and in tests.
type Static struct {
	Snapshots []scoring.Snapshot
}

// Fetch returns the configured batch.
func (s *Static) Fetch(context.Context) ([]scoring.Snapshot, error) {
	return s.Snapshots, nil
}

var _ Source = (*Static)(nil)
