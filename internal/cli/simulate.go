package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"token-health-alerts/internal/app"
)

var (
	simulateEntity    string
	simulateAge       time.Duration
	simulateLiquidity float64
	simulateHolders   int64
	simulateFresh     float64
	simulateSniper    float64
	simulateInsider   float64
	simulateTop10     float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one synthetic snapshot through the full evaluation chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateLiquidity < 0 {
			return errors.New("--liquidity cannot be negative")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Entity:     simulateEntity,
			Age:        simulateAge,
			Liquidity:  simulateLiquidity,
			Holders:    simulateHolders,
			FreshPct:   simulateFresh,
			SniperPct:  simulateSniper,
			InsiderPct: simulateInsider,
			Top10Pct:   simulateTop10,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateEntity, "entity", "simulated-mint", "Entity identifier")
	simulateCmd.Flags().DurationVar(&simulateAge, "age", time.Hour, "Entity age at observation")
	simulateCmd.Flags().Float64Var(&simulateLiquidity, "liquidity", 0, "Liquidity in USD")
	simulateCmd.Flags().Int64Var(&simulateHolders, "holders", 0, "Holder count")
	simulateCmd.Flags().Float64Var(&simulateFresh, "fresh", 0, "Fresh wallet fraction (0-1)")
	simulateCmd.Flags().Float64Var(&simulateSniper, "sniper", 0, "Sniper fraction (0-1)")
	simulateCmd.Flags().Float64Var(&simulateInsider, "insider", 0, "Insider fraction (0-1)")
	simulateCmd.Flags().Float64Var(&simulateTop10, "top10", 0, "Top-10 holder concentration (0-1)")
}
