package rules

import (
	"fmt"

	"token-health-alerts/internal/scoring"
)

// Fields addressable from rule expressions. Fractions use the same
// [0,1] domain as the snapshot.
const (
	FieldScore     = "score"
	FieldLiquidity = "liquidity"
	FieldHolders   = "holders"
	FieldFresh     = "fresh_pct"
	FieldSniper    = "sniper_pct"
	FieldInsider   = "insider_pct"
	FieldTop10     = "top10_pct"
)

// Op is a comparison operator in a leaf expression.
type Op string

const (
	OpGT  Op = "gt"
	OpGTE Op = "gte"
	OpLT  Op = "lt"
	OpLTE Op = "lte"
)

// Env binds field names to values for one evaluation tick.
type Env map[string]float64

// EnvFor flattens a snapshot plus its computed score into an expression
// environment.
func EnvFor(s scoring.Snapshot, score float64) Env {
	return Env{
		FieldScore:     score,
		FieldLiquidity: s.Liquidity.InexactFloat64(),
		FieldHolders:   float64(s.Holders),
		FieldFresh:     s.FreshPct,
		FieldSniper:    s.SniperPct,
		FieldInsider:   s.InsiderPct,
		FieldTop10:     s.Top10Pct,
	}
}

// Expr is a rule predicate represented as data rather than code: either
// a single field comparison, or a conjunction (All) / disjunction (Any)
// of sub-expressions. Keeping conditions as a tagged structure makes
// catalogs reloadable at runtime and statically checkable.
type Expr struct {
	All []Expr `yaml:"all,omitempty"`
	Any []Expr `yaml:"any,omitempty"`

	Field string  `yaml:"field,omitempty"`
	Op    Op      `yaml:"op,omitempty"`
	Value float64 `yaml:"value"`
}

// Eval evaluates the expression against env. A comparison on a field
// missing from env fails closed: it is false, never an error.
func (e Expr) Eval(env Env) bool {
	switch {
	case len(e.All) > 0:
		for _, sub := range e.All {
			if !sub.Eval(env) {
				return false
			}
		}
		return true
	case len(e.Any) > 0:
		for _, sub := range e.Any {
			if sub.Eval(env) {
				return true
			}
		}
		return false
	}

	actual, ok := env[e.Field]
	if !ok {
		return false
	}
	switch e.Op {
	case OpGT:
		return actual > e.Value
	case OpGTE:
		return actual >= e.Value
	case OpLT:
		return actual < e.Value
	case OpLTE:
		return actual <= e.Value
	}
	return false
}

// IsZero reports whether the expression is empty. An empty hard-mute is
// legal and never matches.
func (e Expr) IsZero() bool {
	return len(e.All) == 0 && len(e.Any) == 0 && e.Field == "" && e.Op == ""
}

var validFields = map[string]bool{
	FieldScore:     true,
	FieldLiquidity: true,
	FieldHolders:   true,
	FieldFresh:     true,
	FieldSniper:    true,
	FieldInsider:   true,
	FieldTop10:     true,
}

// Validate checks expression well-formedness: a node is either a
// composite (all xor any) or a leaf with a known field and operator.
func (e Expr) Validate() error {
	composite := len(e.All) > 0 || len(e.Any) > 0
	leaf := e.Field != "" || e.Op != ""

	if composite && leaf {
		return fmt.Errorf("expression mixes composite and leaf forms")
	}
	if len(e.All) > 0 && len(e.Any) > 0 {
		return fmt.Errorf("expression sets both all and any")
	}
	if composite {
		for i, sub := range append(e.All, e.Any...) {
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("sub-expression %d: %w", i, err)
			}
		}
		return nil
	}
	if !leaf {
		return fmt.Errorf("empty expression")
	}
	if !validFields[e.Field] {
		return fmt.Errorf("unknown field %q", e.Field)
	}
	switch e.Op {
	case OpGT, OpGTE, OpLT, OpLTE:
	default:
		return fmt.Errorf("unknown operator %q", e.Op)
	}
	return nil
}

// Helpers for declaring built-in rules.

func cmp(field string, op Op, value float64) Expr {
	return Expr{Field: field, Op: op, Value: value}
}

func all(subs ...Expr) Expr { return Expr{All: subs} }

func anyOf(subs ...Expr) Expr { return Expr{Any: subs} }
