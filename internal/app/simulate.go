package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"token-health-alerts/internal/dispatch"
	"token-health-alerts/internal/engine"
	"token-health-alerts/internal/gate"
	"token-health-alerts/internal/rules"
	"token-health-alerts/internal/scoring"
)

// Simulate 用一个合成快照走完整条评估链路。
// Scoring, rules, and gating all run for real; only persistence is
// absent, so the gate starts cold and sustain-windowed rules stay
// pending.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Entity == "" {
		return errors.New("--entity is required")
	}

	now := time.Now().UTC()
	snap := scoring.Snapshot{
		Entity:     opts.Entity,
		ObservedAt: now,
		LaunchedAt: now.Add(-opts.Age),
		Liquidity:  decimal.NewFromFloat(opts.Liquidity),
		Holders:    opts.Holders,
		FreshPct:   opts.FreshPct,
		SniperPct:  opts.SniperPct,
		InsiderPct: opts.InsiderPct,
		Top10Pct:   opts.Top10Pct,
	}

	catalog, err := rules.NewCatalog(a.Config.Engine.RulesPath, a.Logger)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(nil, a.newNotifier(), nil, a.Logger)
	evaluator := engine.New(catalog, gate.New(), dispatcher, nil, a.Logger)

	result := evaluator.Evaluate(ctx, snap)
	dispatcher.Close()

	fmt.Fprintf(os.Stdout, "entity: %s\nscore: %.1f\nband: %s\n", result.Entity, result.Score, result.Band.Label())
	if len(result.Fired) == 0 {
		fmt.Fprintln(os.Stdout, "fired: none")
		return nil
	}
	for _, fired := range result.Fired {
		fmt.Fprintf(os.Stdout, "fired: %s (%s)\n", fired.Rule.ID, fired.Rule.Kind)
	}
	return nil
}
