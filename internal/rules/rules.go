package rules

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Kind tags the variant of an alert rule.
type Kind string

const (
	KindLaunch          Kind = "launch"
	KindMomentumUpgrade Kind = "momentum_upgrade"
	KindRisk            Kind = "risk"
	KindCustom          Kind = "custom"
)

// Duration wraps time.Duration for YAML decoding of values like "30m".
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back to its string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Rule is one alert rule definition. Rules are data: condition and
// hard-mute are expression structures, so a catalog file can redefine
// them without a rebuild. Rules are immutable once handed out for an
// evaluation cycle; gate state is keyed by ID so reloads do not reset
// in-flight timing windows.
type Rule struct {
	ID        string   `yaml:"id"`
	Kind      Kind     `yaml:"kind"`
	Condition Expr     `yaml:"condition"`
	HardMute  Expr     `yaml:"hard_mute"`
	Debounce  Duration `yaml:"debounce"`
	Sustain   Duration `yaml:"sustain"`
}

// DebounceWindow returns the minimum spacing between two fires.
func (r Rule) DebounceWindow() time.Duration { return time.Duration(r.Debounce) }

// SustainWindow returns the minimum continuous-true duration before the
// rule becomes eligible to fire.
func (r Rule) SustainWindow() time.Duration { return time.Duration(r.Sustain) }

// Validate rejects rules that cannot be evaluated safely. A hard-mute
// may be empty (the rule then has no mute), the condition may not.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	switch r.Kind {
	case KindLaunch, KindMomentumUpgrade, KindRisk, KindCustom:
	case "":
		return fmt.Errorf("rule %s: kind is required", r.ID)
	default:
		return fmt.Errorf("rule %s: unknown kind %q", r.ID, r.Kind)
	}
	if r.Condition.IsZero() {
		return fmt.Errorf("rule %s: condition is required", r.ID)
	}
	if err := r.Condition.Validate(); err != nil {
		return fmt.Errorf("rule %s: condition: %w", r.ID, err)
	}
	if !r.HardMute.IsZero() {
		if err := r.HardMute.Validate(); err != nil {
			return fmt.Errorf("rule %s: hard_mute: %w", r.ID, err)
		}
	}
	if r.Debounce < 0 {
		return fmt.Errorf("rule %s: debounce cannot be negative", r.ID)
	}
	if r.Sustain < 0 {
		return fmt.Errorf("rule %s: sustain cannot be negative", r.ID)
	}
	return nil
}
