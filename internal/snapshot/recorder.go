package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"token-health-alerts/internal/observability"
	"token-health-alerts/internal/scoring"
	"token-health-alerts/internal/storage"
)

// HistoryWriter is the slice of the history store the recorder needs.
type HistoryWriter interface {
	InsertHistory(ctx context.Context, entry storage.ScoreHistoryEntry) (bool, error)
	LastHistoryAt(ctx context.Context, entityID string) (time.Time, error)
}

// Recorder applies the snapshot schedule and writes history entries.
// It suppresses duplicate ticks itself rather than leaning on the
// storage conflict clause; the primary key remains the safety net.
type Recorder struct {
	store   HistoryWriter
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	last map[string]time.Time
}

// NewRecorder builds a recorder on top of a history store. The store
// may be nil, in which case recording is disabled.
func NewRecorder(store HistoryWriter, metrics *observability.Metrics, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger.With().Str("component", "snapshot_recorder").Logger(),
		metrics: metrics,
		last:    make(map[string]time.Time),
	}
}

// Observe considers one scored snapshot for recording. Returns true if
// a history point was written. Store failures are retried with bounded
// backoff and then dropped with a logged error; they never propagate
// into the evaluation path.
func (r *Recorder) Observe(ctx context.Context, snap scoring.Snapshot, score float64) bool {
	if r.store == nil {
		return false
	}

	last := r.lastFor(ctx, snap.Entity)
	if !ShouldSnapshot(snap.Age(), last, snap.ObservedAt) {
		return false
	}

	entry := storage.ScoreHistoryEntry{
		EntityID:   snap.Entity,
		ObservedAt: snap.ObservedAt,
		Liquidity:  snap.Liquidity,
		Holders:    snap.Holders,
		FreshPct:   snap.FreshPct,
		SniperPct:  snap.SniperPct,
		InsiderPct: snap.InsiderPct,
		Top10Pct:   snap.Top10Pct,
		Score:      score,
	}

	var inserted bool
	policy := backoff.WithContext(storeRetryPolicy(), ctx)
	err := backoff.Retry(func() error {
		var insertErr error
		inserted, insertErr = r.store.InsertHistory(ctx, entry)
		if insertErr != nil && r.metrics != nil {
			r.metrics.StoreRetries.Inc()
		}
		return insertErr
	}, policy)
	if err != nil {
		r.logger.Error().Err(err).Str("entity", snap.Entity).Msg("failed to record score history")
		return false
	}

	r.mu.Lock()
	r.last[snap.Entity] = snap.ObservedAt
	r.mu.Unlock()

	if inserted && r.metrics != nil {
		r.metrics.HistoryRowsWritten.Inc()
	}
	return inserted
}

// lastFor returns the last recorded time for an entity, consulting the
// store once for entities first seen after a restart.
func (r *Recorder) lastFor(ctx context.Context, entity string) time.Time {
	r.mu.Lock()
	last, known := r.last[entity]
	r.mu.Unlock()
	if known {
		return last
	}

	stored, err := r.store.LastHistoryAt(ctx, entity)
	if err != nil {
		r.logger.Warn().Err(err).Str("entity", entity).Msg("could not read last history time; assuming none")
		return time.Time{}
	}

	r.mu.Lock()
	r.last[entity] = stored
	r.mu.Unlock()
	return stored
}

func storeRetryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 10 * time.Second
	return policy
}
