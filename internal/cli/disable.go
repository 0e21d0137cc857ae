package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var disableCmd = &cobra.Command{
	Use:   "disable <filter-id>",
	Short: "Deactivate a filter without deleting its alerts or history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filterID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid filter id %q: %w", args[0], err)
		}
		return getApp().DisableFilter(cmd.Context(), filterID)
	},
}
