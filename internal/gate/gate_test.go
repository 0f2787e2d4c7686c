package gate

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestFiresImmediatelyWithoutSustain(t *testing.T) {
	g := New()
	out := g.Step("mint", "launch", t0, true, false, 0, 30*time.Minute)
	if !out.Fire || out.State != Fired {
		t.Fatalf("zero-sustain rule should fire on first true tick: %+v", out)
	}
}

func TestHardMuteSuppressesTrueCondition(t *testing.T) {
	g := New()
	out := g.Step("mint", "launch", t0, true, true, 0, 30*time.Minute)
	if out.Fire {
		t.Fatal("hard-muted rule must never fire")
	}
	if out.State != Idle || out.Suppressed != ReasonHardMute {
		t.Fatalf("mute should force idle with hard_mute reason: %+v", out)
	}

	// Mute also resets any pending sustain progress: the condition is
	// treated as false for the tick.
	g2 := New()
	g2.Step("mint", "momentum", t0, true, false, time.Hour, 15*time.Minute)
	g2.Step("mint", "momentum", t0.Add(30*time.Minute), true, true, time.Hour, 15*time.Minute)
	out = g2.Step("mint", "momentum", t0.Add(90*time.Minute), true, false, time.Hour, 15*time.Minute)
	if out.Fire {
		t.Fatal("sustain clock must restart after a muted tick")
	}
	if out.State != Pending {
		t.Fatalf("expected pending after restart, got %+v", out)
	}
}

func TestDebounceBlocksRefire(t *testing.T) {
	g := New()
	debounce := 30 * time.Minute

	if out := g.Step("mint", "launch", t0, true, false, 0, debounce); !out.Fire {
		t.Fatalf("first fire expected: %+v", out)
	}
	// Condition drops and re-triggers inside the debounce window.
	g.Step("mint", "launch", t0.Add(5*time.Minute), false, false, 0, debounce)
	out := g.Step("mint", "launch", t0.Add(10*time.Minute), true, false, 0, debounce)
	if out.Fire {
		t.Fatal("re-trigger inside debounce window must not fire")
	}
	if out.State != Armed || out.Suppressed != ReasonDebounce {
		t.Fatalf("expected armed/debounce, got %+v", out)
	}
	// Still armed: fires the moment the window elapses.
	out = g.Step("mint", "launch", t0.Add(debounce), true, false, 0, debounce)
	if !out.Fire {
		t.Fatalf("fire expected once debounce elapsed: %+v", out)
	}
}

func TestContinuousTrueFiresOnce(t *testing.T) {
	g := New()
	fires := 0
	for i := 0; i < 24; i++ {
		out := g.Step("mint", "launch", t0.Add(time.Duration(i)*5*time.Minute), true, false, 0, 30*time.Minute)
		if out.Fire {
			fires++
		} else if i > 0 && out.Suppressed != ReasonStreak {
			t.Fatalf("tick %d: expected streak suppression, got %+v", i, out)
		}
	}
	if fires != 1 {
		t.Fatalf("continuously true condition fired %d times, want 1", fires)
	}
}

func TestRefireRequiresFalseTransitionAndDebounce(t *testing.T) {
	g := New()
	debounce := 30 * time.Minute

	g.Step("mint", "launch", t0, true, false, 0, debounce)
	// Goes false, then true again after the debounce window: new fire.
	out := g.Step("mint", "launch", t0.Add(35*time.Minute), false, false, 0, debounce)
	if !out.StreakEnded {
		t.Fatalf("false after a fire should end the streak: %+v", out)
	}
	out = g.Step("mint", "launch", t0.Add(40*time.Minute), true, false, 0, debounce)
	if !out.Fire {
		t.Fatalf("re-trigger past debounce should fire: %+v", out)
	}
}

func TestSustainWindow(t *testing.T) {
	g := New()
	sustain := time.Hour
	debounce := 15 * time.Minute
	step := func(offset time.Duration, cond bool) Outcome {
		return g.Step("mint", "momentum", t0.Add(offset), cond, false, sustain, debounce)
	}

	if out := step(0, true); out.Fire || out.State != Pending {
		t.Fatalf("first true tick should be pending: %+v", out)
	}
	if out := step(30*time.Minute, true); out.Fire || out.Suppressed != ReasonSustain {
		t.Fatalf("mid-sustain tick should be suppressed: %+v", out)
	}
	if out := step(time.Hour, true); !out.Fire {
		t.Fatalf("sustain satisfied at exactly one hour, should fire: %+v", out)
	}
}

func TestTransientFalseResetsSustainClock(t *testing.T) {
	g := New()
	sustain := time.Hour
	step := func(offset time.Duration, cond bool) Outcome {
		return g.Step("mint", "momentum", t0.Add(offset), cond, false, sustain, 15*time.Minute)
	}

	step(0, true)
	step(20*time.Minute, false) // transient dip
	step(25*time.Minute, true)  // clock restarts here

	if out := step(70*time.Minute, true); out.Fire {
		t.Fatal("65 minutes after original start but only 45 after restart; must not fire")
	}
	if out := step(85*time.Minute, true); !out.Fire {
		t.Fatalf("60 minutes after restart, should fire: %+v", out)
	}
}

func TestSeedPreservesDebounceAcrossRestart(t *testing.T) {
	g := New()
	g.Seed("mint", "launch", t0)

	out := g.Step("mint", "launch", t0.Add(10*time.Minute), true, false, 0, 30*time.Minute)
	if out.Fire {
		t.Fatal("seeded debounce anchor must suppress an early re-fire")
	}
	out = g.Step("mint", "launch", t0.Add(31*time.Minute), true, false, 0, 30*time.Minute)
	if !out.Fire {
		t.Fatalf("fire expected once seeded debounce elapsed: %+v", out)
	}

	// Older seeds never rewind a newer anchor.
	g.Seed("mint", "launch", t0.Add(-time.Hour))
	out = g.Step("mint", "launch", t0.Add(32*time.Minute), true, false, 0, 30*time.Minute)
	if out.Fire {
		t.Fatal("stale seed must not rewind the debounce anchor")
	}
}

func TestEntitiesAndRulesAreIndependent(t *testing.T) {
	g := New()
	if out := g.Step("mint-a", "launch", t0, true, false, 0, 30*time.Minute); !out.Fire {
		t.Fatal("mint-a should fire")
	}
	if out := g.Step("mint-b", "launch", t0, true, false, 0, 30*time.Minute); !out.Fire {
		t.Fatal("mint-b tracks its own debounce window")
	}
	if out := g.Step("mint-a", "risk", t0, true, false, 0, 5*time.Minute); !out.Fire {
		t.Fatal("a different rule on the same entity has its own state")
	}
}

func TestEvict(t *testing.T) {
	g := New()
	g.Step("old", "launch", t0, false, false, 0, time.Minute)
	g.Step("fresh", "launch", t0.Add(2*time.Hour), false, false, 0, time.Minute)

	if removed := g.Evict(t0.Add(time.Hour)); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", g.Len())
	}
}
