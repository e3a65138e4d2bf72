package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scheduleFile string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the monitored restaurant config",
}

var scheduleApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Store a YAML restaurant config",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleFile == "" {
			return fmt.Errorf("--file must be provided")
		}
		return getApp().ApplySchedule(cmd.Context(), scheduleFile)
	},
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored restaurant config as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowSchedule(cmd.Context())
	},
}

func init() {
	scheduleApplyCmd.Flags().StringVar(&scheduleFile, "file", "", "Path to the YAML restaurant config")
	scheduleCmd.AddCommand(scheduleApplyCmd)
	scheduleCmd.AddCommand(scheduleShowCmd)
}
