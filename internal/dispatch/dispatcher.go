// Package dispatch turns gate fires into persisted alert records and
// outbound notifications. It runs off the evaluation path: events are
// queued and worked by a background goroutine so storage latency never
// stalls gating decisions.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"token-health-alerts/internal/alerting"
	"token-health-alerts/internal/engine"
	"token-health-alerts/internal/observability"
	"token-health-alerts/internal/storage"
)

// AlertWriter is the slice of the alert store the dispatcher needs.
type AlertWriter interface {
	InsertAlert(ctx context.Context, alert storage.AlertRecord) (bool, error)
	ResolveAlerts(ctx context.Context, entityID, ruleID string) (int64, error)
}

const queueDepth = 256

type eventKind int

const (
	eventFire eventKind = iota
	eventResolve
)

type event struct {
	kind     eventKind
	alert    engine.FiredAlert
	entityID string
	ruleID   string
}

// Dispatcher persists and notifies fired alerts. Both the store and the
// notifier may be nil; missing collaborators degrade observability,
// never gating.
type Dispatcher struct {
	store    AlertWriter
	notifier alerting.Notifier
	logger   zerolog.Logger
	metrics  *observability.Metrics

	queue chan event
	done  chan struct{}
	once  sync.Once
}

// New constructs a dispatcher and starts its worker.
func New(store AlertWriter, notifier alerting.Notifier, metrics *observability.Metrics, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		metrics:  metrics,
		queue:    make(chan event, queueDepth),
		done:     make(chan struct{}),
	}
	go d.work()
	return d
}

// Dispatch enqueues a fired alert. Non-blocking: if the queue is full
// the event is dropped with an error log rather than stalling the
// evaluator.
func (d *Dispatcher) Dispatch(alert engine.FiredAlert) {
	d.enqueue(event{kind: eventFire, alert: alert})
}

// Resolve enqueues resolution of the active alerts for a pair whose
// condition has cleared.
func (d *Dispatcher) Resolve(entityID, ruleID string) {
	d.enqueue(event{kind: eventResolve, entityID: entityID, ruleID: ruleID})
}

// Close stops accepting events and drains the in-flight queue.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
	})
	<-d.done
}

func (d *Dispatcher) enqueue(ev event) {
	defer func() {
		// Sends on the closed queue during shutdown are discarded.
		if recover() != nil {
			d.logger.Warn().Msg("dispatch after close; event discarded")
		}
	}()

	select {
	case d.queue <- ev:
	default:
		if d.metrics != nil {
			d.metrics.DispatchDropped.Inc()
		}
		d.logger.Error().Msg("dispatch queue full; event dropped")
	}
}

func (d *Dispatcher) work() {
	defer close(d.done)
	for ev := range d.queue {
		switch ev.kind {
		case eventFire:
			d.handleFire(ev.alert)
		case eventResolve:
			d.handleResolve(ev.entityID, ev.ruleID)
		}
	}
}

func (d *Dispatcher) handleFire(alert engine.FiredAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	note := alerting.Notification{
		Entity:     alert.Snapshot.Entity,
		RuleID:     alert.Rule.ID,
		RuleKind:   string(alert.Rule.Kind),
		FiredAt:    alert.FiredAt,
		Score:      alert.Score,
		Band:       alert.Band.Label(),
		Liquidity:  alert.Snapshot.Liquidity,
		Holders:    alert.Snapshot.Holders,
		FreshPct:   alert.Snapshot.FreshPct,
		SniperPct:  alert.Snapshot.SniperPct,
		InsiderPct: alert.Snapshot.InsiderPct,
		Top10Pct:   alert.Snapshot.Top10Pct,
	}

	inserted := true
	if d.store != nil {
		record, err := d.buildRecord(alert, note)
		if err != nil {
			d.logger.Error().Err(err).Msg("failed to build alert record")
			return
		}
		inserted = d.persist(ctx, record)
	}

	// A conflicting insert means this fire was already recorded (and
	// presumably announced) by an earlier run; stay quiet.
	if !inserted {
		d.logger.Debug().
			Str("entity", note.Entity).
			Str("rule", note.RuleID).
			Msg("duplicate fire skipped")
		return
	}

	if d.notifier != nil {
		if err := d.notifier.Notify(ctx, note); err != nil {
			d.logger.Error().Err(err).
				Str("entity", note.Entity).
				Str("rule", note.RuleID).
				Msg("failed to deliver notification")
		}
	}
}

func (d *Dispatcher) buildRecord(alert engine.FiredAlert, note alerting.Notification) (storage.AlertRecord, error) {
	payload, err := json.Marshal(map[string]any{
		"liquidity":   alert.Snapshot.Liquidity,
		"holders":     alert.Snapshot.Holders,
		"fresh_pct":   alert.Snapshot.FreshPct,
		"sniper_pct":  alert.Snapshot.SniperPct,
		"insider_pct": alert.Snapshot.InsiderPct,
		"top10_pct":   alert.Snapshot.Top10Pct,
	})
	if err != nil {
		return storage.AlertRecord{}, err
	}

	return storage.AlertRecord{
		ID:       uuid.New(),
		EntityID: alert.Snapshot.Entity,
		RuleID:   alert.Rule.ID,
		FiredAt:  alert.FiredAt,
		Score:    alert.Score,
		Band:     alert.Band.Label(),
		Message:  alerting.RenderMessage(note),
		Payload:  payload,
		Status:   storage.StatusActive,
	}, nil
}

// persist writes the record with bounded exponential backoff. Returns
// whether a new row was created; repeated failure is logged and treated
// as a skipped duplicate so no notification goes out unrecorded.
func (d *Dispatcher) persist(ctx context.Context, record storage.AlertRecord) bool {
	var inserted bool
	policy := backoff.WithContext(retryPolicy(), ctx)
	err := backoff.Retry(func() error {
		var insertErr error
		inserted, insertErr = d.store.InsertAlert(ctx, record)
		if insertErr != nil && d.metrics != nil {
			d.metrics.StoreRetries.Inc()
		}
		return insertErr
	}, policy)
	if err != nil {
		d.logger.Error().Err(err).
			Str("entity", record.EntityID).
			Str("rule", record.RuleID).
			Msg("failed to persist alert")
		return false
	}
	return inserted
}

func (d *Dispatcher) handleResolve(entityID, ruleID string) {
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := d.store.ResolveAlerts(ctx, entityID, ruleID)
	if err != nil {
		d.logger.Error().Err(err).
			Str("entity", entityID).
			Str("rule", ruleID).
			Msg("failed to resolve alerts")
		return
	}
	if n > 0 && d.metrics != nil {
		d.metrics.AlertsResolved.Add(float64(n))
	}
}

func retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 15 * time.Second
	return policy
}

var _ engine.Dispatcher = (*Dispatcher)(nil)
