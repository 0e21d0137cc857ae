package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <filter-id>",
	Short: "Run one monitoring pass for a single filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filterID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid filter id %q: %w", args[0], err)
		}
		return getApp().CheckFilter(cmd.Context(), filterID)
	},
}
