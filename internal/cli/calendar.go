package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hourswatch/internal/app"
)

var (
	calendarFrom string
	calendarTo   string
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Print the per-day status calendar for a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		if calendarFrom == "" || calendarTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}
		return getApp().Calendar(cmd.Context(), app.CalendarOptions{
			From: calendarFrom,
			To:   calendarTo,
		})
	},
}

func init() {
	calendarCmd.Flags().StringVar(&calendarFrom, "from", "", "First day (YYYY-MM-DD, inclusive)")
	calendarCmd.Flags().StringVar(&calendarTo, "to", "", "Last day (YYYY-MM-DD, inclusive)")
}
