// Package engine orchestrates one evaluation tick per entity snapshot:
// normalize, score, evaluate the rule catalog, and drive the anti-noise
// gate. Alert emission crosses into the dispatcher; the engine itself
// never touches storage.
package engine

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-health-alerts/internal/gate"
	"token-health-alerts/internal/observability"
	"token-health-alerts/internal/rules"
	"token-health-alerts/internal/scoring"
)

// shards for per-entity serialization; evaluations of distinct entities
// proceed in parallel.
const lockShards = 64

// FiredAlert is the unit handed to the dispatcher when a gate fires.
// FiredAt is the decision instant (the snapshot's observation time) at
// full precision, which makes replays idempotent downstream.
type FiredAlert struct {
	Rule     rules.Rule
	Snapshot scoring.Snapshot
	Score    float64
	Band     scoring.Band
	FiredAt  time.Time
}

// Dispatcher receives fire and resolve events. Implementations must not
// block: the evaluator calls them inline while holding the entity lock.
type Dispatcher interface {
	Dispatch(alert FiredAlert)
	Resolve(entityID, ruleID string)
}

// Result summarizes one snapshot evaluation.
type Result struct {
	Entity  string
	Score   float64
	Band    scoring.Band
	Fired   []FiredAlert
	Dropped bool
}

// Evaluator runs snapshots against the active rule catalog.
type Evaluator struct {
	catalog    *rules.Catalog
	gate       *gate.Gate
	dispatcher Dispatcher
	logger     zerolog.Logger
	metrics    *observability.Metrics

	locks [lockShards]sync.Mutex

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// New constructs an evaluator. metrics may be nil (used by simulate).
func New(catalog *rules.Catalog, g *gate.Gate, dispatcher Dispatcher, metrics *observability.Metrics, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		catalog:    catalog,
		gate:       g,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "evaluator").Logger(),
		metrics:    metrics,
		lastSeen:   make(map[string]time.Time),
	}
}

// Evaluate processes one snapshot. Safe for concurrent use across
// entities; evaluations of the same entity serialize on a shard lock so
// gate read-modify-write stays single-writer per entity.
func (e *Evaluator) Evaluate(ctx context.Context, snap scoring.Snapshot) Result {
	shard := &e.locks[shardFor(snap.Entity)]
	shard.Lock()
	defer shard.Unlock()

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.EvalLatency.Observe(time.Since(start).Seconds())
		}
	}()

	snap = scoring.Normalize(snap)

	// Out-of-order snapshots would rewind sustain/debounce anchors;
	// drop them before any state is touched.
	if e.outOfOrder(snap) {
		if e.metrics != nil {
			e.metrics.SnapshotsDropped.Inc()
		}
		e.logger.Warn().
			Str("entity", snap.Entity).
			Time("observed_at", snap.ObservedAt).
			Msg("dropping out-of-order snapshot")
		return Result{Entity: snap.Entity, Dropped: true}
	}

	score := scoring.Score(snap)
	band := scoring.BandFor(score)
	env := rules.EnvFor(snap, score)

	result := Result{Entity: snap.Entity, Score: score, Band: band}

	for _, rule := range e.catalog.Rules() {
		cond := rule.Condition.Eval(env)
		mute := !rule.HardMute.IsZero() && rule.HardMute.Eval(env)

		out := e.gate.Step(
			snap.Entity, rule.ID, snap.ObservedAt,
			cond, mute,
			rule.SustainWindow(), rule.DebounceWindow(),
		)

		if out.Fire {
			fired := FiredAlert{
				Rule:     rule,
				Snapshot: snap,
				Score:    score,
				Band:     band,
				FiredAt:  snap.ObservedAt,
			}
			result.Fired = append(result.Fired, fired)
			if e.dispatcher != nil {
				e.dispatcher.Dispatch(fired)
			}
			if e.metrics != nil {
				e.metrics.AlertsFired.WithLabelValues(rule.ID).Inc()
			}
			e.logger.Info().
				Str("entity", snap.Entity).
				Str("rule", rule.ID).
				Float64("score", score).
				Str("band", band.Label()).
				Msg("alert fired")
			continue
		}

		if out.StreakEnded && e.dispatcher != nil {
			e.dispatcher.Resolve(snap.Entity, rule.ID)
		}
		if out.Suppressed != "" && e.metrics != nil {
			e.metrics.AlertsSuppressed.WithLabelValues(rule.ID, string(out.Suppressed)).Inc()
		}
	}

	if e.metrics != nil {
		e.metrics.SnapshotsEvaluated.Inc()
	}
	return result
}

// outOfOrder records the snapshot's timestamp and reports whether it
// moved backwards for its entity.
func (e *Evaluator) outOfOrder(snap scoring.Snapshot) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	last, ok := e.lastSeen[snap.Entity]
	if ok && snap.ObservedAt.Before(last) {
		return true
	}
	e.lastSeen[snap.Entity] = snap.ObservedAt
	return false
}

func shardFor(entity string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entity))
	return h.Sum32() % lockShards
}
