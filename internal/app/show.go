package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"token-health-alerts/internal/storage"
)

// Show prints recent alerts, optionally filtered to one entity.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var alerts []storage.AlertRecord
	if opts.Entity != "" {
		alerts, err = store.ListEntityAlerts(ctx, opts.Entity, opts.Limit)
	} else {
		alerts, err = store.ListRecentAlerts(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tEntity\tRule\tScore\tBand\tStatus\tMessage")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%.1f\t%s\t%s\t%s\n",
			alert.FiredAt.UTC().Format(time.RFC3339),
			alert.EntityID,
			alert.RuleID,
			alert.Score,
			alert.Band,
			alert.Status,
			sanitizeInline(alert.Message),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
