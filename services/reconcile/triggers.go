package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

// TriggerConfig bounds the page-view triggers
type TriggerConfig struct {
	GatewayID         string
	StalenessWindow   time.Duration
	Timeout           time.Duration
	Async             bool
	CustomerListLimit int
	AdminListLimit    int
}

// TriggerConfigFrom builds the trigger bounds from the service configuration
func TriggerConfigFrom(ocpayConf *config.OCPayConfiguration, reconcileConf *config.ReconcileConfiguration) TriggerConfig {
	return TriggerConfig{
		GatewayID:         ocpayConf.GatewayID,
		StalenessWindow:   reconcileConf.StalenessWindow,
		Timeout:           reconcileConf.PageViewTimeout,
		Async:             reconcileConf.PageViewAsync,
		CustomerListLimit: reconcileConf.CustomerListLimit,
		AdminListLimit:    reconcileConf.AdminListLimit,
	}
}

// Triggers runs opportunistic reconciliations on behalf of page views.
// Nothing here ever returns an error: failures are logged and the caller renders the current status.
type Triggers struct {
	engine Reconciler
	store  types.OrderStore
	conf   TriggerConfig
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewTriggers creates the page-view trigger surface
func NewTriggers(engine Reconciler, store types.OrderStore, conf TriggerConfig) *Triggers {
	if conf.Timeout <= 0 {
		conf.Timeout = 10 * time.Second
	}
	return &Triggers{engine: engine, store: store, conf: conf, now: time.Now}
}

// ThankYou reconciles the order just placed
func (t *Triggers) ThankYou(ctx context.Context, orderID string) (types.ReconcileResult, bool) {
	return t.one(ctx, "thank_you", orderID)
}

// OrderView reconciles the order a customer is looking at
func (t *Triggers) OrderView(ctx context.Context, orderID string) (types.ReconcileResult, bool) {
	return t.one(ctx, "order_view", orderID)
}

// AdminOrderView reconciles the order an admin is looking at; on-hold orders are rechecked too
func (t *Triggers) AdminOrderView(ctx context.Context, orderID string) (types.ReconcileResult, bool) {
	return t.one(ctx, "admin_order_view", orderID, AllowOnHold())
}

// CustomerOrderList reconciles a bounded number of the customer's recent pending orders
func (t *Triggers) CustomerOrderList(ctx context.Context, customerID string) []types.ReconcileResult {
	if customerID == "" {
		return nil
	}
	return t.batch(ctx, "customer_order_list", t.conf.CustomerListLimit, customerID)
}

// AdminOrderList reconciles a bounded number of pending orders of any customer
func (t *Triggers) AdminOrderList(ctx context.Context) []types.ReconcileResult {
	return t.batch(ctx, "admin_order_list", t.conf.AdminListLimit, "")
}

// Wait blocks until asynchronous triggers have finished
func (t *Triggers) Wait() {
	t.wg.Wait()
}

func (t *Triggers) one(ctx context.Context, trigger, orderID string, opts ...CallOption) (types.ReconcileResult, bool) {
	if t.conf.Async {
		t.goDetached(ctx, func(ctx context.Context) {
			t.safeReconcile(ctx, trigger, orderID, opts...)
		})
		return types.ReconcileResult{OrderID: orderID}, false
	}

	ctx, cancel := context.WithTimeout(ctx, t.conf.Timeout)
	defer cancel()
	return t.safeReconcile(ctx, trigger, orderID, opts...)
}

func (t *Triggers) batch(ctx context.Context, trigger string, limit int, customerID string) []types.ReconcileResult {
	if limit <= 0 {
		return nil
	}

	run := func(ctx context.Context) []types.ReconcileResult {
		query := types.OrderQuery{
			PaymentMethod:       t.conf.GatewayID,
			Statuses:            []types.OrderStatus{types.OrderStatusPending},
			CustomerID:          customerID,
			HasPaymentReference: true,
			Limit:               limit,
			NewestFirst:         true,
		}
		if t.conf.StalenessWindow > 0 {
			query.CreatedAfter = t.now().Add(-t.conf.StalenessWindow)
		}

		orders, err := t.store.Find(ctx, query)
		if err != nil {
			logger.WithFields(logger.Fields{
				"Error":   fmt.Sprintf("%v", err),
				"Trigger": trigger,
			}).Errorf("Triggers.FindOrders")
			return nil
		}

		results := make([]types.ReconcileResult, 0, len(orders))
		for _, order := range orders {
			if ctx.Err() != nil {
				break
			}
			if result, ok := t.safeReconcile(ctx, trigger, order.ID); ok {
				results = append(results, result)
			}
		}
		return results
	}

	if t.conf.Async {
		t.goDetached(ctx, func(ctx context.Context) { run(ctx) })
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.conf.Timeout)
	defer cancel()
	return run(ctx)
}

// goDetached runs fn after the request has returned, bounded by the trigger timeout
func (t *Triggers) goDetached(ctx context.Context, fn func(ctx context.Context)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.conf.Timeout)
		defer cancel()
		fn(ctx)
	}()
}

// safeReconcile swallows errors and panics so that page rendering never fails
func (t *Triggers) safeReconcile(ctx context.Context, trigger, orderID string, opts ...CallOption) (result types.ReconcileResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logger.Fields{
				"OrderID": orderID,
				"Trigger": trigger,
				"Panic":   fmt.Sprintf("%v", r),
			}).Errorf("Triggers.Reconcile: recovered from panic")
			result, ok = types.ReconcileResult{OrderID: orderID}, false
		}
	}()

	result, err := t.engine.Reconcile(ctx, orderID, append(opts, WithTrigger(trigger))...)
	if err != nil {
		entry := logger.WithFields(logger.Fields{
			"Error":   fmt.Sprintf("%v", err),
			"OrderID": orderID,
			"Trigger": trigger,
		})
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrProviderUnavailable) {
			entry.Warnf("Triggers.Reconcile")
		} else {
			entry.Errorf("Triggers.Reconcile")
		}
		return result, false
	}
	return result, true
}
