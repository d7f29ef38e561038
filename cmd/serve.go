package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/oneclickdz/ocpay-reconciler/routers"
	"github.com/oneclickdz/ocpay-reconciler/storage"
	"github.com/oneclickdz/ocpay-reconciler/tasks"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sweep scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			var scheduler *gocron.Scheduler
			if !noScheduler {
				scheduler = tasks.StartCronJobs(a.sweeper)
			}

			router := routers.Routes(routers.Dependencies{
				Storefront: a.storefrontController(),
				Admin:      a.adminController(tasks.SchedulerStatus{Scheduler: scheduler}),
				Redis:      storage.RedisClient,
				Server:     &a.conf.Server,
				Auth:       &a.conf.Auth,
				Reconcile:  &a.conf.Reconcile,
			})

			server := &http.Server{
				Addr:              fmt.Sprintf("%s:%s", a.conf.Server.Host, a.conf.Server.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				logger.Infof("Server Running at :%v", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				<-ctx.Done()
				logger.Infof("Shutting down")

				if scheduler != nil {
					scheduler.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve HTTP only; another replica runs the sweeps")

	return cmd
}
