package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate-observation <observation-id>",
	Short: "Mark a price observation invalid so statistics exclude it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		observationID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid observation id %q: %w", args[0], err)
		}
		return getApp().InvalidateObservation(cmd.Context(), observationID)
	},
}
