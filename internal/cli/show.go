package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"flight-fare-monitor/internal/app"
)

var (
	showRoute string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent price observations for a route",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Route: showRoute,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showRoute, "route", "", "Route key, e.g. JFK-LAX")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of observations to display")
}
