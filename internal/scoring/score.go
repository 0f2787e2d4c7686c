package scoring

import "math"

const (
	freshCap         = 35.0
	liquidityCap     = 20.0
	sniperCap        = 15.0
	insiderCap       = 20.0
	concentrationCap = 10.0

	liquidityFloor   = 1.0
	liquidityCeiling = 1_000_000.0
)

// log10 of the liquidity ceiling; denominator of the logarithmic term.
var liquidityLogSpan = math.Log10(liquidityCeiling)

// Score maps a snapshot to a health score in [0,100]. It is pure and
// total: out-of-range inputs are normalized first, so it never errors.
//
// Two capped positive terms (fresh participation, liquidity on a log
// scale from $1 to $1M) minus three capped penalties (snipers, insiders,
// top-10 concentration). Only the final sum is clamped to [0,100]; the
// individual terms carry their own caps.
func Score(s Snapshot) float64 {
	s = Normalize(s)

	fresh := math.Min(freshCap, freshCap*s.FreshPct)

	liq := s.Liquidity.InexactFloat64()
	if liq < liquidityFloor {
		liq = liquidityFloor
	}
	if liq > liquidityCeiling {
		liq = liquidityCeiling
	}
	liquidity := math.Min(liquidityCap, liquidityCap*math.Log10(liq)/liquidityLogSpan)

	sniper := math.Min(sniperCap, sniperCap*s.SniperPct)
	insider := math.Min(insiderCap, insiderCap*s.InsiderPct)
	concentration := math.Min(concentrationCap, concentrationCap*s.Top10Pct)

	total := fresh + liquidity - sniper - insider - concentration
	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}
