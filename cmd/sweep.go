package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/oneclickdz/ocpay-reconciler/services/reconcile"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var tier string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep tier now, through the shared sweep lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.sweeper.Run(cmd.Context(), types.SweepTier(tier))
			if err != nil {
				return err
			}
			if stats.Skipped {
				return fmt.Errorf("sweep %s skipped: another sweep holds the lock", tier)
			}
			return printJSON(cmd, stats)
		},
	}

	cmd.Flags().StringVar(&tier, "tier", string(types.SweepTierFull), "sweep tier (recent, full, stuck)")

	return cmd
}

func checkCmd() *cobra.Command {
	var onHold bool

	cmd := &cobra.Command{
		Use:   "check <order-id>",
		Short: "Reconcile one order against the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			opts := []reconcile.CallOption{reconcile.WithTrigger("cli")}
			if onHold {
				opts = append(opts, reconcile.AllowOnHold())
			}

			result, err := a.engine.Reconcile(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().BoolVar(&onHold, "on-hold", false, "also recheck an order that is on hold")

	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
