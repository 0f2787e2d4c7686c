package rules

import "time"

// Builtin returns the default rule set used when no catalog file is
// configured. Thresholds follow the launch/momentum/risk playbook;
// participant fractions are expressed in the [0,1] domain.
func Builtin() []Rule {
	return []Rule{
		{
			ID:   "launch",
			Kind: KindLaunch,
			Condition: all(
				cmp(FieldScore, OpGTE, 70),
				cmp(FieldLiquidity, OpGTE, 10_000),
				cmp(FieldHolders, OpGTE, 50),
			),
			HardMute: anyOf(
				cmp(FieldSniper, OpGT, 0.30),
				cmp(FieldInsider, OpGT, 0.20),
				cmp(FieldTop10, OpGT, 0.60),
			),
			Debounce: Duration(30 * time.Minute),
			Sustain:  0,
		},
		{
			ID:   "momentum-upgrade",
			Kind: KindMomentumUpgrade,
			// Half-open band [60,80): strictly below 80 on purpose, a
			// score of exactly 80 belongs to the launch-grade range.
			Condition: all(
				cmp(FieldScore, OpGTE, 60),
				cmp(FieldScore, OpLT, 80),
				cmp(FieldFresh, OpGTE, 0.40),
			),
			HardMute: anyOf(
				cmp(FieldSniper, OpGT, 0.40),
				cmp(FieldInsider, OpGT, 0.30),
				cmp(FieldTop10, OpGT, 0.70),
			),
			Debounce: Duration(15 * time.Minute),
			Sustain:  Duration(60 * time.Minute),
		},
		{
			ID:   "risk",
			Kind: KindRisk,
			Condition: anyOf(
				cmp(FieldScore, OpLT, 40),
				cmp(FieldSniper, OpGT, 0.50),
				cmp(FieldInsider, OpGT, 0.40),
				cmp(FieldTop10, OpGT, 0.80),
			),
			// Dust pools churn constantly; a risk alert there is noise.
			HardMute: anyOf(
				cmp(FieldLiquidity, OpLT, 1_000),
				cmp(FieldHolders, OpLT, 10),
			),
			Debounce: Duration(5 * time.Minute),
			Sustain:  0,
		},
	}
}
