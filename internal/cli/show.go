package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"token-health-alerts/internal/app"
)

var (
	showEntity string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Entity: showEntity,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showEntity, "entity", "", "Only show alerts for this entity")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of alerts to display")
}
