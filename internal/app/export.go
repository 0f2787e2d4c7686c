package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"token-health-alerts/internal/storage"
)

// Export renders one entity's score history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Entity == "" {
		return errors.New("--entity is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-7 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	entries, err := store.HistoryBetween(ctx, opts.Entity, from, to)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.Logger.Info().Str("entity", opts.Entity).Msg("no history found for export window")
		return nil
	}

	downsampled := downsampleHistory(entries, opts.MaxPoints)
	a.Logger.Info().Int("total", len(entries)).Int("exported", len(downsampled)).Msg("exporting score history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, opts.Entity, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleHistory(entries []storage.ScoreHistoryEntry, max int) []storage.ScoreHistoryEntry {
	if max <= 0 || len(entries) <= max {
		return entries
	}

	result := make([]storage.ScoreHistoryEntry, 0, max)
	step := float64(len(entries)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(entries) {
			idx = len(entries) - 1
		}
		result = append(result, entries[idx])
	}
	return result
}

func writeHistoryCSV(path string, entries []storage.ScoreHistoryEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "score", "liquidity_usd", "holders", "fresh_pct", "sniper_pct", "insider_pct", "top10_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, entry := range entries {
		record := []string{
			entry.ObservedAt.Format(time.RFC3339),
			strconv.FormatFloat(entry.Score, 'f', 2, 64),
			entry.Liquidity.String(),
			strconv.FormatInt(entry.Holders, 10),
			strconv.FormatFloat(entry.FreshPct, 'f', 4, 64),
			strconv.FormatFloat(entry.SniperPct, 'f', 4, 64),
			strconv.FormatFloat(entry.InsiderPct, 'f', 4, 64),
			strconv.FormatFloat(entry.Top10Pct, 'f', 4, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeHistoryPNG(path, entity string, entries []storage.ScoreHistoryEntry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(entries))
	scores := make([]float64, len(entries))
	liquidity := make([]float64, len(entries))

	for i, entry := range entries {
		x[i] = entry.ObservedAt
		scores[i] = entry.Score
		liquidity[i] = entry.Liquidity.InexactFloat64()
	}

	scoreFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("Health score: %s", entity),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Score",
			ValueFormatter: scoreFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Liquidity (USD)",
			ValueFormatter: scoreFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Score",
				XValues: x,
				YValues: scores,
			},
			chart.TimeSeries{
				Name:    "Liquidity",
				XValues: x,
				YValues: liquidity,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
