package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"token-health-alerts/internal/scoring"
)

// History prints the recorded score history for one entity.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	if opts.Entity == "" {
		return errors.New("--entity is required")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	entries, err := store.EntityHistory(ctx, opts.Entity)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no history found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tScore\tBand\tLiquidity\tHolders\tFresh%\tSniper%\tInsider%\tTop10%")

	for _, entry := range entries {
		fmt.Fprintf(
			writer,
			"%s\t%.1f\t%s\t%s\t%d\t%.0f\t%.0f\t%.0f\t%.0f\n",
			entry.ObservedAt.UTC().Format(time.RFC3339),
			entry.Score,
			scoring.BandFor(entry.Score).Label(),
			entry.Liquidity.StringFixed(2),
			entry.Holders,
			entry.FreshPct*100,
			entry.SniperPct*100,
			entry.InsiderPct*100,
			entry.Top10Pct*100,
		)
	}

	writer.Flush()
	return nil
}
