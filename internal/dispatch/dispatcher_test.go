package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-health-alerts/internal/alerting"
	"token-health-alerts/internal/engine"
	"token-health-alerts/internal/rules"
	"token-health-alerts/internal/scoring"
	"token-health-alerts/internal/storage"
)

type fakeAlertStore struct {
	mu       sync.Mutex
	records  []storage.AlertRecord
	resolved []string
	failures int
}

func (f *fakeAlertStore) InsertAlert(_ context.Context, alert storage.AlertRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return false, errors.New("transient store failure")
	}
	for _, existing := range f.records {
		if existing.EntityID == alert.EntityID &&
			existing.RuleID == alert.RuleID &&
			existing.FiredAt.Equal(alert.FiredAt) {
			return false, nil
		}
	}
	f.records = append(f.records, alert)
	return true, nil
}

func (f *fakeAlertStore) ResolveAlerts(_ context.Context, entityID, ruleID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, entityID+"/"+ruleID)
	return 1, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, note)
	return nil
}

func firedAlert(entity string, firedAt time.Time) engine.FiredAlert {
	snap := scoring.Snapshot{
		Entity:     entity,
		ObservedAt: firedAt,
		Liquidity:  decimal.NewFromInt(25_500),
		Holders:    150,
		FreshPct:   0.45,
		SniperPct:  0.12,
		InsiderPct: 0.08,
		Top10Pct:   0.33,
	}
	return engine.FiredAlert{
		Rule:     rules.Builtin()[0],
		Snapshot: snap,
		Score:    52.5,
		Band:     scoring.BandFor(52.5),
		FiredAt:  firedAt,
	}
}

var fireTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDispatchPersistsAndNotifies(t *testing.T) {
	store := &fakeAlertStore{}
	notifier := &fakeNotifier{}
	d := New(store, notifier, nil, zerolog.Nop())

	d.Dispatch(firedAlert("mint", fireTime))
	d.Close()

	if len(store.records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.EntityID != "mint" || rec.RuleID != "launch" || rec.Status != storage.StatusActive {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Message == "" || rec.Payload == nil {
		t.Fatal("record should carry a rendered message and payload")
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notes))
	}
	if notifier.notes[0].Band != "Fair" {
		t.Fatalf("notification band mismatch: %+v", notifier.notes[0])
	}
}

func TestDispatchDuplicateStaysQuiet(t *testing.T) {
	store := &fakeAlertStore{}
	notifier := &fakeNotifier{}
	d := New(store, notifier, nil, zerolog.Nop())

	d.Dispatch(firedAlert("mint", fireTime))
	d.Dispatch(firedAlert("mint", fireTime)) // same (entity, rule, fired_at)
	d.Close()

	if len(store.records) != 1 {
		t.Fatalf("duplicate should not persist: %d records", len(store.records))
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("duplicate should not notify: %d notifications", len(notifier.notes))
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	store := &fakeAlertStore{failures: 2}
	notifier := &fakeNotifier{}
	d := New(store, notifier, nil, zerolog.Nop())

	d.Dispatch(firedAlert("mint", fireTime))
	d.Close()

	if len(store.records) != 1 {
		t.Fatalf("expected persistence after retries, got %d records", len(store.records))
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("expected notification after retries, got %d", len(notifier.notes))
	}
}

func TestResolveReachesStore(t *testing.T) {
	store := &fakeAlertStore{}
	d := New(store, nil, nil, zerolog.Nop())

	d.Resolve("mint", "launch")
	d.Close()

	if len(store.resolved) != 1 || store.resolved[0] != "mint/launch" {
		t.Fatalf("unexpected resolutions: %+v", store.resolved)
	}
}

func TestDispatchWithoutStoreStillNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	d := New(nil, notifier, nil, zerolog.Nop())

	d.Dispatch(firedAlert("mint", fireTime))
	d.Close()

	if len(notifier.notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notes))
	}
}
