package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/controllers"
	"github.com/oneclickdz/ocpay-reconciler/controllers/admin"
	"github.com/oneclickdz/ocpay-reconciler/services"
	"github.com/oneclickdz/ocpay-reconciler/services/checkout"
	"github.com/oneclickdz/ocpay-reconciler/services/events"
	"github.com/oneclickdz/ocpay-reconciler/services/ocpay"
	"github.com/oneclickdz/ocpay-reconciler/services/reconcile"
	"github.com/oneclickdz/ocpay-reconciler/storage"
	"github.com/oneclickdz/ocpay-reconciler/tasks"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

// app holds the services shared by every command
type app struct {
	conf       *config.Configuration
	store      *storage.OrderStore
	client     *ocpay.Client
	dispatcher *events.Dispatcher
	engine     *reconcile.Engine
	triggers   *reconcile.Triggers
	sweeper    *tasks.Sweeper
}

// newApp connects the database and Redis and wires the reconciliation services
func newApp() (*app, error) {
	conf := config.Load()

	logger.Init(conf.Server, os.Stdout)
	if loc, err := time.LoadLocation(conf.Server.Timezone); err == nil {
		time.Local = loc
	} else {
		logger.Warnf("Invalid SERVER_TIMEZONE %q: %v", conf.Server.Timezone, err)
	}

	if err := storage.DBConnection(&conf.Database); err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	if err := storage.InitializeRedis(); err != nil {
		_ = storage.Close()
		return nil, err
	}

	a := &app{
		conf:  conf,
		store: storage.NewOrderStore(storage.GetClient()),
	}

	client, err := ocpay.NewClient(&conf.OCPay)
	switch {
	case errors.Is(err, ocpay.ErrMissingAPIKey):
		logger.WithFields(logger.Fields{"Mode": conf.OCPay.Mode}).Warnf("OCPay API key not configured; payment checks are disabled")
	case err != nil:
		a.close()
		return nil, fmt.Errorf("ocpay client: %w", err)
	default:
		a.client = client
	}

	slack := services.NewSlackService(conf.Server.SlackWebhookURL)
	a.dispatcher, err = events.NewDispatcherFromConfig(&conf.Notification, slack)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("event dispatcher: %w", err)
	}

	a.engine = reconcile.NewEngine(a.store, a.checker(), reconcile.ConfigFrom(&conf.OCPay, &conf.Reconcile),
		reconcile.WithEventPublisher(a.dispatcher))
	a.triggers = reconcile.NewTriggers(a.engine, a.store, reconcile.TriggerConfigFrom(&conf.OCPay, &conf.Reconcile))
	a.sweeper = tasks.NewSweeper(a.engine, a.store, storage.RedisClient, tasks.SweepConfigFrom(&conf.OCPay, &conf.Reconcile))
	a.sweeper.SetAlerter(slack)

	return a, nil
}

// checker returns the provider as an interface that is nil when no API key is set
func (a *app) checker() types.PaymentStatusChecker {
	if a.client == nil {
		return nil
	}
	return a.client
}

func (a *app) creator() types.PaymentLinkCreator {
	if a.client == nil {
		return nil
	}
	return a.client
}

func (a *app) tester() admin.ConnectionTester {
	if a.client == nil {
		return nil
	}
	return a.client
}

func (a *app) storefrontController() *controllers.Controller {
	checkoutService := checkout.NewService(a.store, a.creator(), checkout.ConfigFrom(&a.conf.OCPay))
	return controllers.NewController(a.store, a.engine, a.triggers, checkoutService,
		controllers.ConfigFrom(&a.conf.OCPay, &a.conf.Auth, &a.conf.Reconcile))
}

func (a *app) adminController(scheduler admin.SchedulerInfo) *admin.Controller {
	return admin.NewController(a.store, a.triggers, a.sweeper, a.sweeper.Recorder(), scheduler, a.tester(),
		storage.RedisClient, admin.Config{
			GatewayID:       a.conf.OCPay.GatewayID,
			StalenessWindow: a.conf.Reconcile.StalenessWindow,
			RecentWindow:    a.conf.Reconcile.RecentWindow,
			StuckAge:        a.conf.Reconcile.StuckAge,
			Intervals:       tasks.Intervals(),
		})
}

func (a *app) close() {
	if a.triggers != nil {
		a.triggers.Wait()
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(); err != nil {
			logger.Warnf("Closing event sinks: %v", err)
		}
	}
	if storage.RedisClient != nil {
		_ = storage.RedisClient.Close()
	}
	if err := storage.Close(); err != nil {
		logger.Warnf("Closing database: %v", err)
	}
}
