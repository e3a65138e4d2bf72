package cli

import (
	"time"

	"github.com/spf13/cobra"
)

var eventsDate string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Display the stored daily events of one day",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := eventsDate
		if date == "" {
			date = time.Now().UTC().Format(time.DateOnly)
		}
		return getApp().Events(cmd.Context(), date)
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsDate, "date", "", "Day to display (YYYY-MM-DD, defaults to today UTC)")
}
