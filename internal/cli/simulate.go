package cli

import (
	"github.com/spf13/cobra"
)

var simulateEventType string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次营业异常并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateEventType)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateEventType, "event-type", "never_opened", "事件类型：never_opened/opened_late/closed_early")
}
