package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"token-health-alerts/internal/gate"
	"token-health-alerts/internal/rules"
	"token-health-alerts/internal/scoring"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	fired    []FiredAlert
	resolved []string
}

func (d *recordingDispatcher) Dispatch(alert FiredAlert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fired = append(d.fired, alert)
}

func (d *recordingDispatcher) Resolve(entityID, ruleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolved = append(d.resolved, entityID+"/"+ruleID)
}

// strengthRule is a launch-style rule with a score threshold reachable
// by the scorer, so gate behavior can be exercised end to end.
func strengthRule() rules.Rule {
	return rules.Rule{
		ID:   "early-strength",
		Kind: rules.KindLaunch,
		Condition: rules.Expr{All: []rules.Expr{
			{Field: rules.FieldScore, Op: rules.OpGTE, Value: 45},
			{Field: rules.FieldLiquidity, Op: rules.OpGTE, Value: 10_000},
			{Field: rules.FieldHolders, Op: rules.OpGTE, Value: 50},
		}},
		HardMute: rules.Expr{Any: []rules.Expr{
			{Field: rules.FieldSniper, Op: rules.OpGT, Value: 0.30},
			{Field: rules.FieldInsider, Op: rules.OpGT, Value: 0.20},
			{Field: rules.FieldTop10, Op: rules.OpGT, Value: 0.60},
		}},
		Debounce: rules.Duration(30 * time.Minute),
	}
}

func newTestEvaluator(t *testing.T, ruleSet ...rules.Rule) (*Evaluator, *recordingDispatcher) {
	t.Helper()
	var (
		catalog *rules.Catalog
		err     error
	)
	if len(ruleSet) == 0 {
		catalog, err = rules.NewCatalog("", zerolog.Nop())
	} else {
		catalog, err = rules.NewStatic(ruleSet, zerolog.Nop())
	}
	if err != nil {
		t.Fatal(err)
	}
	disp := &recordingDispatcher{}
	return New(catalog, gate.New(), disp, nil, zerolog.Nop()), disp
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// healthySnap scores around 52.5: full fresh term (35), most of the
// liquidity term, negligible penalties.
func healthySnap(entity string, observed time.Time) scoring.Snapshot {
	return scoring.Snapshot{
		Entity:     entity,
		ObservedAt: observed,
		LaunchedAt: observed.Add(-time.Hour),
		Liquidity:  decimal.NewFromInt(500_000),
		Holders:    150,
		FreshPct:   1.0,
		SniperPct:  0.02,
		InsiderPct: 0.01,
		Top10Pct:   0.10,
	}
}

func TestEvaluateFiresOnce(t *testing.T) {
	ev, disp := newTestEvaluator(t, strengthRule())

	res := ev.Evaluate(context.Background(), healthySnap("mint", baseTime))
	if len(res.Fired) != 1 || res.Fired[0].Rule.ID != "early-strength" {
		t.Fatalf("expected exactly one fire, got %+v", res.Fired)
	}
	if res.Band.Label() != "Fair" {
		t.Fatalf("score %.2f should band as Fair, got %s", res.Score, res.Band)
	}

	// Condition stays true on the next tick: streak suppression.
	res = ev.Evaluate(context.Background(), healthySnap("mint", baseTime.Add(5*time.Minute)))
	if len(res.Fired) != 0 {
		t.Fatalf("continuously true condition re-fired: %+v", res.Fired)
	}
	if len(disp.fired) != 1 {
		t.Fatalf("dispatcher saw %d fires, want 1", len(disp.fired))
	}
}

func TestEvaluateHardMuteSuppresses(t *testing.T) {
	ev, disp := newTestEvaluator(t, strengthRule())

	// Top-10 concentration at 65%: condition still true (score ~47),
	// hard-mute trips.
	snap := healthySnap("mint", baseTime)
	snap.Top10Pct = 0.65
	res := ev.Evaluate(context.Background(), snap)

	if len(res.Fired) != 0 {
		t.Fatalf("hard-muted rule must not fire: %+v", res.Fired)
	}
	if res.Score < 45 {
		t.Fatalf("test premise broken: condition no longer true at score %.2f", res.Score)
	}
	if len(disp.fired) != 0 {
		t.Fatalf("unexpected dispatches: %+v", disp.fired)
	}
}

func TestEvaluateRiskScenarioWithBuiltins(t *testing.T) {
	ev, _ := newTestEvaluator(t) // builtin catalog

	snap := scoring.Snapshot{
		Entity:     "sketchy",
		ObservedAt: baseTime,
		LaunchedAt: baseTime.Add(-time.Hour),
		Liquidity:  decimal.NewFromInt(2_100),
		Holders:    25,
		FreshPct:   0.10,
		SniperPct:  0.65,
		InsiderPct: 0.45,
		Top10Pct:   0.20,
	}
	res := ev.Evaluate(context.Background(), snap)
	if len(res.Fired) != 1 || res.Fired[0].Rule.ID != "risk" {
		t.Fatalf("risk rule should fire (sniper 65%%, mute floors met): %+v", res.Fired)
	}
	if res.Band.Label() != "Poor" {
		t.Fatalf("score %.2f should band as Poor, got %s", res.Score, res.Band)
	}
}

func TestEvaluateRiskMutedForDustPools(t *testing.T) {
	ev, disp := newTestEvaluator(t)

	snap := scoring.Snapshot{
		Entity:     "dust",
		ObservedAt: baseTime,
		LaunchedAt: baseTime.Add(-time.Hour),
		Liquidity:  decimal.NewFromInt(500),
		Holders:    4,
		SniperPct:  0.90,
	}
	res := ev.Evaluate(context.Background(), snap)
	if len(res.Fired) != 0 {
		t.Fatalf("dust-pool mute should suppress risk: %+v", res.Fired)
	}
	if len(disp.fired) != 0 {
		t.Fatal("nothing should reach the dispatcher")
	}
}

func TestEvaluateSustainWindow(t *testing.T) {
	sustained := strengthRule()
	sustained.ID = "sustained-strength"
	sustained.Sustain = rules.Duration(15 * time.Minute)
	ev, disp := newTestEvaluator(t, sustained)

	ev.Evaluate(context.Background(), healthySnap("mint", baseTime))
	ev.Evaluate(context.Background(), healthySnap("mint", baseTime.Add(5*time.Minute)))
	if len(disp.fired) != 0 {
		t.Fatal("must not fire before the sustain window elapses")
	}
	ev.Evaluate(context.Background(), healthySnap("mint", baseTime.Add(15*time.Minute)))
	if len(disp.fired) != 1 {
		t.Fatalf("expected fire at sustain boundary, got %d", len(disp.fired))
	}
}

func TestEvaluateDropsOutOfOrderSnapshots(t *testing.T) {
	ev, disp := newTestEvaluator(t, strengthRule())

	ev.Evaluate(context.Background(), healthySnap("mint", baseTime))

	stale := healthySnap("mint", baseTime.Add(-10*time.Minute))
	res := ev.Evaluate(context.Background(), stale)
	if !res.Dropped {
		t.Fatal("earlier timestamp should be dropped")
	}
	if len(disp.fired) != 1 {
		t.Fatalf("stale snapshot must not touch gate state: %d fires", len(disp.fired))
	}
}

func TestEvaluateReplayedStreamFiresOnce(t *testing.T) {
	ev, disp := newTestEvaluator(t, strengthRule())

	stream := []scoring.Snapshot{
		healthySnap("mint", baseTime),
		healthySnap("mint", baseTime.Add(5*time.Minute)),
		healthySnap("mint", baseTime.Add(10*time.Minute)),
	}
	for pass := 0; pass < 2; pass++ {
		for _, s := range stream {
			ev.Evaluate(context.Background(), s)
		}
	}

	if len(disp.fired) != 1 {
		t.Fatalf("identical stream fed twice fired %d times, want 1", len(disp.fired))
	}
	// Even if a duplicate slipped through, its fired_at would collide
	// with the original under the alert uniqueness key.
	if !disp.fired[0].FiredAt.Equal(baseTime) {
		t.Fatalf("fired_at should be the decision instant: %s", disp.fired[0].FiredAt)
	}
}

func TestEvaluateResolvesWhenConditionClears(t *testing.T) {
	ev, disp := newTestEvaluator(t, strengthRule())

	ev.Evaluate(context.Background(), healthySnap("mint", baseTime))

	cooled := healthySnap("mint", baseTime.Add(5*time.Minute))
	cooled.FreshPct = 0
	cooled.Liquidity = decimal.NewFromInt(5_000)
	ev.Evaluate(context.Background(), cooled)

	found := false
	for _, r := range disp.resolved {
		if r == "mint/early-strength" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected resolution for the cleared rule, got %+v", disp.resolved)
	}
}

func TestEvaluateDistinctEntitiesIndependent(t *testing.T) {
	ev, disp := newTestEvaluator(t, strengthRule())

	ev.Evaluate(context.Background(), healthySnap("mint-a", baseTime))
	ev.Evaluate(context.Background(), healthySnap("mint-b", baseTime))

	if len(disp.fired) != 2 {
		t.Fatalf("each entity should fire independently, got %d", len(disp.fired))
	}
}
