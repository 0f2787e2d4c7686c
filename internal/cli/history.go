package cli

import (
	"github.com/spf13/cobra"

	"token-health-alerts/internal/app"
)

var historyEntity string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display the recorded score history for an entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().History(cmd.Context(), app.HistoryOptions{Entity: historyEntity})
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyEntity, "entity", "", "Entity identifier (token mint)")
}
