package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-health-alerts/internal/scoring"
	"token-health-alerts/internal/storage"
)

func TestInterval(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want time.Duration
	}{
		{30 * time.Minute, 5 * time.Minute},
		{2 * time.Hour, 5 * time.Minute},
		{3 * time.Hour, 15 * time.Minute},
		{24 * time.Hour, 15 * time.Minute},
		{25 * time.Hour, time.Hour},
		{30 * 24 * time.Hour, time.Hour},
	}
	for _, tc := range cases {
		if got := Interval(tc.age); got != tc.want {
			t.Fatalf("Interval(%s) = %s, want %s", tc.age, got, tc.want)
		}
	}
}

func TestShouldSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// 90-minute-old entity: 5-minute interval.
	age := 90 * time.Minute
	if ShouldSnapshot(age, now.Add(-4*time.Minute), now) {
		t.Fatal("4 minutes since last snapshot, interval not elapsed")
	}
	if !ShouldSnapshot(age, now.Add(-6*time.Minute), now) {
		t.Fatal("6 minutes since last snapshot, should record")
	}

	// No prior snapshot always records.
	if !ShouldSnapshot(age, time.Time{}, now) {
		t.Fatal("first observation must record")
	}

	// Day-old entity waits for the hourly interval.
	if ShouldSnapshot(36*time.Hour, now.Add(-30*time.Minute), now) {
		t.Fatal("mature entity on hourly cadence should not record at 30m")
	}
}

type fakeHistory struct {
	mu       sync.Mutex
	entries  []storage.ScoreHistoryEntry
	lastAt   time.Time
	failures int
}

func (f *fakeHistory) InsertHistory(_ context.Context, entry storage.ScoreHistoryEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return false, errors.New("transient store failure")
	}
	for _, existing := range f.entries {
		if existing.EntityID == entry.EntityID && existing.ObservedAt.Equal(entry.ObservedAt) {
			return false, nil
		}
	}
	f.entries = append(f.entries, entry)
	return true, nil
}

func (f *fakeHistory) LastHistoryAt(_ context.Context, _ string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAt, nil
}

func historySnap(entity string, observed time.Time, age time.Duration) scoring.Snapshot {
	return scoring.Snapshot{
		Entity:     entity,
		ObservedAt: observed,
		LaunchedAt: observed.Add(-age),
		Liquidity:  decimal.NewFromInt(25_000),
		Holders:    120,
		FreshPct:   0.4,
	}
}

func TestRecorderSuppressesDuplicateTicks(t *testing.T) {
	store := &fakeHistory{}
	rec := NewRecorder(store, nil, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !rec.Observe(context.Background(), historySnap("mint", now, time.Hour), 70) {
		t.Fatal("first observation should record")
	}
	if rec.Observe(context.Background(), historySnap("mint", now.Add(time.Minute), time.Hour), 71) {
		t.Fatal("one minute later is inside the 5-minute interval")
	}
	if !rec.Observe(context.Background(), historySnap("mint", now.Add(5*time.Minute), time.Hour), 72) {
		t.Fatal("five minutes later should record")
	}
	if len(store.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(store.entries))
	}
}

func TestRecorderReplayProducesNoDuplicates(t *testing.T) {
	store := &fakeHistory{}
	rec := NewRecorder(store, nil, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stream := []scoring.Snapshot{
		historySnap("mint", now, time.Hour),
		historySnap("mint", now.Add(5*time.Minute), time.Hour),
		historySnap("mint", now.Add(10*time.Minute), time.Hour),
	}
	for pass := 0; pass < 2; pass++ {
		for _, s := range stream {
			rec.Observe(context.Background(), s, 70)
		}
	}
	if len(store.entries) != 3 {
		t.Fatalf("replay created duplicates: %d entries", len(store.entries))
	}
}

func TestRecorderConsultsStoreAfterRestart(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeHistory{lastAt: now.Add(-2 * time.Minute)}
	rec := NewRecorder(store, nil, zerolog.Nop())

	if rec.Observe(context.Background(), historySnap("mint", now, time.Hour), 70) {
		t.Fatal("store already has a snapshot 2 minutes old; must not record")
	}
}

func TestRecorderRetriesTransientFailures(t *testing.T) {
	store := &fakeHistory{failures: 2}
	rec := NewRecorder(store, nil, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !rec.Observe(context.Background(), historySnap("mint", now, time.Hour), 70) {
		t.Fatal("observation should succeed after transient failures")
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
}
