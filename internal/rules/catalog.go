package rules

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Catalog holds the active rule set and supports reload between
// evaluation ticks. A malformed rule in the file is skipped with a
// reported error rather than failing the whole reload; a file that
// cannot be read at all leaves the previous rule set in place.
type Catalog struct {
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	rules   []Rule
	modTime time.Time
}

type catalogFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewCatalog builds a catalog. With an empty path the built-in rules
// are used and Reload is a no-op.
func NewCatalog(path string, logger zerolog.Logger) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		logger: logger.With().Str("component", "rule_catalog").Logger(),
		rules:  Builtin(),
	}
	if path != "" {
		if err := c.loadFile(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewStatic builds a catalog from an in-memory rule set, validating
// each rule. Used when rules come from code rather than a file.
func NewStatic(ruleSet []Rule, logger zerolog.Logger) (*Catalog, error) {
	for _, rule := range ruleSet {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
	}
	return &Catalog{
		logger: logger.With().Str("component", "rule_catalog").Logger(),
		rules:  ruleSet,
	}, nil
}

// Rules returns the active rule set. The slice is a copy; callers hold
// it for the duration of one evaluation cycle.
func (c *Catalog) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Reload re-reads the catalog file if it changed on disk. Safe to call
// between ticks; in-flight gate state survives because it is keyed by
// rule id, not by rule object identity.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}

	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("stat rule catalog: %w", err)
	}

	c.mu.RLock()
	unchanged := info.ModTime().Equal(c.modTime)
	c.mu.RUnlock()
	if unchanged {
		return nil
	}

	return c.loadFile()
}

func (c *Catalog) loadFile() error {
	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("stat rule catalog: %w", err)
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read rule catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse rule catalog: %w", err)
	}
	if len(file.Rules) == 0 {
		return fmt.Errorf("rule catalog %s defines no rules", c.path)
	}

	accepted := make([]Rule, 0, len(file.Rules))
	seen := make(map[string]bool, len(file.Rules))
	for _, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			c.logger.Error().Err(err).Str("rule_id", rule.ID).Msg("skipping malformed rule")
			continue
		}
		if seen[rule.ID] {
			c.logger.Error().Str("rule_id", rule.ID).Msg("skipping duplicate rule id")
			continue
		}
		seen[rule.ID] = true
		accepted = append(accepted, rule)
	}
	if len(accepted) == 0 {
		return fmt.Errorf("rule catalog %s contains no valid rules", c.path)
	}

	c.mu.Lock()
	c.rules = accepted
	c.modTime = info.ModTime()
	c.mu.Unlock()

	c.logger.Info().Int("rules", len(accepted)).Str("path", c.path).Msg("rule catalog loaded")
	return nil
}
