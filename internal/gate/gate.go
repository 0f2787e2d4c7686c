// Package gate implements the per-(entity, rule) anti-noise state
// machine. It decides whether a rule's current truth value should
// actually fire, given sustain and debounce history. The gate performs
// no I/O; persistence of fired alerts happens downstream.
package gate

import (
	"sync"
	"time"
)

// State of one (entity, rule) pair.
type State int

const (
	// Idle: condition false, nothing pending.
	Idle State = iota
	// Pending: condition became true, waiting out the sustain window.
	Pending
	// Armed: sustain satisfied, eligible to fire subject to debounce.
	Armed
	// Fired: fired for the current true-streak; will not re-fire until
	// the condition transitions false and back to true.
	Fired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	}
	return "unknown"
}

// Reason explains why a true condition did not fire this tick.
type Reason string

const (
	ReasonHardMute Reason = "hard_mute"
	ReasonSustain  Reason = "sustain"
	ReasonDebounce Reason = "debounce"
	ReasonStreak   Reason = "streak"
)

// Outcome of one gate step.
type Outcome struct {
	Fire       bool
	State      State
	Suppressed Reason
	// StreakEnded is set on the tick where a previously fired condition
	// goes false; callers use it to resolve the open alert.
	StreakEnded bool
}

type key struct {
	entity string
	rule   string
}

type entry struct {
	state        State
	sustainStart time.Time
	lastFired    time.Time
	hasFired     bool
	lastSeen     time.Time
}

// Gate owns all (entity, rule) state. The internal map is guarded for
// concurrent access across entities; callers must serialize steps for
// the same entity (the evaluator holds a per-entity lock).
type Gate struct {
	mu      sync.Mutex
	entries map[key]*entry
}

// New returns an empty gate.
func New() *Gate {
	return &Gate{entries: make(map[key]*entry)}
}

// Seed installs a debounce anchor for a pair, used to warm-start from
// persisted alerts after a restart. Later anchors win; sustain clocks
// always restart cold.
func (g *Gate) Seed(entity, rule string, lastFired time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := key{entity: entity, rule: rule}
	e, ok := g.entries[k]
	if !ok {
		e = &entry{}
		g.entries[k] = e
	}
	if lastFired.After(e.lastFired) {
		e.lastFired = lastFired
		e.hasFired = true
	}
}

// Step advances the state machine one tick and reports whether the rule
// fires now. cond is the rule's raw condition truth, mute the hard-mute
// truth; a true mute forces the condition false for this tick.
func (g *Gate) Step(entity, rule string, now time.Time, cond, mute bool, sustain, debounce time.Duration) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := key{entity: entity, rule: rule}
	e, ok := g.entries[k]
	if !ok {
		e = &entry{}
		g.entries[k] = e
	}
	e.lastSeen = now

	var suppressed Reason
	if mute && cond {
		suppressed = ReasonHardMute
	}
	if mute {
		cond = false
	}

	if !cond {
		streakEnded := e.state == Fired
		e.state = Idle
		e.sustainStart = time.Time{}
		return Outcome{State: Idle, Suppressed: suppressed, StreakEnded: streakEnded}
	}

	switch e.state {
	case Idle:
		e.sustainStart = now
		if sustain > 0 {
			e.state = Pending
			return Outcome{State: Pending, Suppressed: ReasonSustain}
		}
		e.state = Armed
	case Pending:
		if now.Sub(e.sustainStart) < sustain {
			return Outcome{State: Pending, Suppressed: ReasonSustain}
		}
		e.state = Armed
	case Fired:
		return Outcome{State: Fired, Suppressed: ReasonStreak}
	}

	// Armed: fire unless inside the debounce window of the last fire.
	if e.hasFired && now.Sub(e.lastFired) < debounce {
		return Outcome{State: Armed, Suppressed: ReasonDebounce}
	}

	e.hasFired = true
	e.lastFired = now
	e.state = Fired
	return Outcome{Fire: true, State: Fired}
}

// Evict drops pairs not seen since the given cutoff and returns how
// many were removed. Safe at any time: state is only ever read relative
// to "now", so a re-created pair behaves like a fresh one.
func (g *Gate) Evict(cutoff time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for k, e := range g.entries {
		if e.lastSeen.Before(cutoff) {
			delete(g.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked (entity, rule) pairs.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
