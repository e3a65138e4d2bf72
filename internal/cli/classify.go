package cli

import (
	"github.com/spf13/cobra"

	"hourswatch/internal/app"
)

var (
	classifyFrom   string
	classifyTo     string
	classifyDryRun bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Re-run daily classification over stored status checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Classify(cmd.Context(), app.ClassifyOptions{
			From:   classifyFrom,
			To:     classifyTo,
			DryRun: classifyDryRun,
		})
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyFrom, "from", "", "First day (YYYY-MM-DD, defaults to today in the restaurant timezone)")
	classifyCmd.Flags().StringVar(&classifyTo, "to", "", "Last day (YYYY-MM-DD, defaults to --from)")
	classifyCmd.Flags().BoolVar(&classifyDryRun, "dry-run", false, "Print verdicts without writing events")
}
