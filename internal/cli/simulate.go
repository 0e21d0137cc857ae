package cli

import (
	"github.com/spf13/cobra"

	"flight-fare-monitor/internal/app"
)

var (
	simulateRoute   string
	simulateTarget  float64
	simulatePrice   float64
	simulateHistory []float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-break",
	Short: "Run a synthetic quote through the detection pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateBreak(cmd.Context(), app.SimulateOptions{
			Route:       simulateRoute,
			TargetPrice: simulateTarget,
			QuotePrice:  simulatePrice,
			History:     simulateHistory,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateRoute, "route", "JFK-LAX", "Route key, e.g. JFK-LAX")
	simulateCmd.Flags().Float64Var(&simulateTarget, "target", 0, "Filter target price")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Observed quote price")
	simulateCmd.Flags().Float64SliceVar(&simulateHistory, "history", nil, "Historical prices to seed route statistics")
}
