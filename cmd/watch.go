package cmd

import (
	"fmt"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/services/poller"
	"github.com/oneclickdz/ocpay-reconciler/utils/token"
	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	var (
		baseURL string
		nonce   string
	)

	cmd := &cobra.Command{
		Use:   "watch <order-id>",
		Short: "Poll an order the way the storefront does and print every transition",
		Long: `Poll an order the way the storefront does and print every transition.

Without --url the order is checked in process against the configured database.
With --url the poll endpoint of a running service is called, signing a nonce
with SECRET unless --nonce is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID := args[0]
			out := cmd.OutOrStdout()

			reconcileConf := config.ReconcileConfig()

			var checker poller.Checker
			if baseURL != "" {
				if nonce == "" {
					auth := config.AuthConfig()
					var err error
					if nonce, err = token.GeneratePollNonce(auth.Secret, orderID, "", auth.NonceLifespan); err != nil {
						return err
					}
				}
				checker = poller.NewHTTPChecker(baseURL, nonce)
			} else {
				a, err := newApp()
				if err != nil {
					return err
				}
				defer a.close()
				checker = poller.NewEngineChecker(a.engine, a.store, a.conf.OCPay.GatewayID)
			}

			session := poller.NewSession(orderID, checker, poller.Config{
				MaxAttempts:   reconcileConf.PollMaxAttempts,
				RedirectDelay: reconcileConf.PollRedirectDelay,
			}, poller.WithObserver(func(e poller.Event) {
				switch e.Type {
				case poller.EventScheduled:
					fmt.Fprintf(out, "[%d/%d] next check in %s\n", e.Attempt, e.MaxAttempts, e.Delay)
				case poller.EventError:
					fmt.Fprintf(out, "[%d/%d] check failed: %v\n", e.Attempt, e.MaxAttempts, e.Err)
				case poller.EventConfirmed, poller.EventFailed:
					fmt.Fprintf(out, "[%d/%d] %s (status %s)\n", e.Attempt, e.MaxAttempts, e.Type, e.Status)
				default:
					fmt.Fprintf(out, "[%d/%d] %s\n", e.Attempt, e.MaxAttempts, e.Type)
				}
			}))

			if err := session.Start(cmd.Context()); err != nil {
				return err
			}

			select {
			case <-session.Done():
			case <-cmd.Context().Done():
				session.Stop()
			}

			fmt.Fprintf(out, "final state: %s after %d checks\n", session.State(), session.Attempt())
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "base URL of a running service")
	cmd.Flags().StringVar(&nonce, "nonce", "", "poll nonce handed out by the thank-you endpoint")

	return cmd
}
