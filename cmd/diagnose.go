package cmd

import (
	"github.com/oneclickdz/ocpay-reconciler/tasks"
	"github.com/spf13/cobra"
)

func diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Print health checks, pending order statistics and the last sweep runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			// the scheduler runs inside serve, not here
			report, err := a.adminController(tasks.SchedulerStatus{}).Report(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}
