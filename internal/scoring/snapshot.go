package scoring

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one timestamped set of metric observations for a token.
// It is the immutable input to scoring and rule evaluation; one logical
// snapshot arrives per token per evaluation tick.
type Snapshot struct {
	Entity     string
	ObservedAt time.Time
	LaunchedAt time.Time

	Liquidity decimal.Decimal
	Holders   int64

	// Participant fractions, each in [0,1].
	FreshPct   float64
	SniperPct  float64
	InsiderPct float64
	Top10Pct   float64
}

// Age returns how long the token had existed at observation time.
func (s Snapshot) Age() time.Duration {
	if s.LaunchedAt.IsZero() || s.ObservedAt.Before(s.LaunchedAt) {
		return 0
	}
	return s.ObservedAt.Sub(s.LaunchedAt)
}

// Normalize clamps out-of-range fields to their nearest valid bound so
// that scoring stays total. Negative amounts become zero, fractions are
// forced into [0,1].
func Normalize(s Snapshot) Snapshot {
	if s.Liquidity.IsNegative() {
		s.Liquidity = decimal.Zero
	}
	if s.Holders < 0 {
		s.Holders = 0
	}
	s.FreshPct = clamp01(s.FreshPct)
	s.SniperPct = clamp01(s.SniperPct)
	s.InsiderPct = clamp01(s.InsiderPct)
	s.Top10Pct = clamp01(s.Top10Pct)
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
