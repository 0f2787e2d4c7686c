package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-health-alerts/internal/config"
	"token-health-alerts/internal/engine"
	"token-health-alerts/internal/gate"
	"token-health-alerts/internal/observability"
	"token-health-alerts/internal/rules"
	"token-health-alerts/internal/scheduler"
	"token-health-alerts/internal/scoring"
	"token-health-alerts/internal/snapshot"
	"token-health-alerts/internal/source"
	"token-health-alerts/internal/storage"
)

// AdvisoryLocker guards single-replica execution of the tick loop.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error)
}

// FireSeeder exposes recently fired alerts for gate warm-start.
type FireSeeder interface {
	LastFires(ctx context.Context, since time.Time) ([]storage.RuleFire, error)
}

// Service orchestrates fetching, evaluation, recording, and gate upkeep.
type Service struct {
	scheduler *scheduler.Scheduler
	source    source.Source
	evaluator *engine.Evaluator
	recorder  *snapshot.Recorder
	catalog   *rules.Catalog
	gate      *gate.Gate
	metrics   *observability.Metrics
	logger    zerolog.Logger

	locker     AdvisoryLocker
	seeder     FireSeeder
	lockKey    int64
	workers    int
	evictAfter time.Duration
	seedWindow time.Duration
}

// Deps bundle the collaborators the service drives.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Source    source.Source
	Evaluator *engine.Evaluator
	Recorder  *snapshot.Recorder
	Catalog   *rules.Catalog
	Gate      *gate.Gate
	Metrics   *observability.Metrics
	Locker    AdvisoryLocker
	Seeder    FireSeeder
}

// New constructs the monitoring service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	workers := cfg.Engine.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Service{
		scheduler:  deps.Scheduler,
		source:     deps.Source,
		evaluator:  deps.Evaluator,
		recorder:   deps.Recorder,
		catalog:    deps.Catalog,
		gate:       deps.Gate,
		metrics:    deps.Metrics,
		logger:     logger.With().Str("component", "service").Logger(),
		locker:     deps.Locker,
		seeder:     deps.Seeder,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		workers:    workers,
		evictAfter: cfg.Engine.GateEvictAfter,
		seedWindow: cfg.Engine.SeedWindow,
	}
}

// Run seeds the gate from persisted alerts, then begins the aligned
// evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if err := s.seedGate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("gate warm-start skipped")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单个评估周期。
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, tick)
}

func (s *Service) executeTick(ctx context.Context, tick time.Time) error {
	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
	}

	if err := s.catalog.Reload(); err != nil {
		// Previous catalog stays active; a broken edit must not stall
		// the loop.
		s.logger.Error().Err(err).Msg("rule catalog reload failed; keeping previous rules")
	}

	snaps, err := s.source.Fetch(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.SourceErrors.Inc()
		}
		return fmt.Errorf("fetch snapshots: %w", err)
	}

	fired := s.evaluateAll(ctx, snaps)

	if s.evictAfter > 0 {
		removed := s.gate.Evict(tick.Add(-s.evictAfter))
		if removed > 0 {
			s.logger.Debug().Int("removed", removed).Msg("evicted stale gate entries")
		}
	}
	if s.metrics != nil {
		s.metrics.GateEntries.Set(float64(s.gate.Len()))
	}

	s.logger.Info().
		Time("tick", tick).
		Int("snapshots", len(snaps)).
		Int("fired", fired).
		Msg("tick complete")
	return nil
}

// evaluateAll fans snapshots out over a bounded worker pool. Entities
// collide on the evaluator's shard locks at worst; distinct entities
// evaluate in parallel.
func (s *Service) evaluateAll(ctx context.Context, snaps []scoring.Snapshot) int {
	work := make(chan scoring.Snapshot)
	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range work {
				result := s.evaluator.Evaluate(ctx, snap)
				if result.Dropped {
					continue
				}
				if s.recorder != nil {
					s.recorder.Observe(ctx, snap, result.Score)
				}
				if len(result.Fired) > 0 {
					mu.Lock()
					fired += len(result.Fired)
					mu.Unlock()
				}
			}
		}()
	}

	for _, snap := range snaps {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return fired
		case work <- snap:
		}
	}
	close(work)
	wg.Wait()
	return fired
}

func (s *Service) seedGate(ctx context.Context) error {
	if s.seeder == nil || s.seedWindow <= 0 {
		return nil
	}
	fires, err := s.seeder.LastFires(ctx, time.Now().UTC().Add(-s.seedWindow))
	if err != nil {
		return fmt.Errorf("load recent fires: %w", err)
	}
	for _, fire := range fires {
		s.gate.Seed(fire.EntityID, fire.RuleID, fire.FiredAt)
	}
	if len(fires) > 0 {
		s.logger.Info().Int("pairs", len(fires)).Msg("seeded gate debounce anchors from persisted alerts")
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
