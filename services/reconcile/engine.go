package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

var (
	// ErrOrderNotFound means the order id did not resolve
	ErrOrderNotFound = types.ErrOrderNotFound
	// ErrProviderUnavailable covers transport failures, non-2xx answers and a missing client
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrInvalidResponse means the provider answered 2xx without the expected fields
	ErrInvalidResponse = errors.New("invalid payment provider response")
)

const (
	confirmedNote = "OCPay payment confirmed via status polling. Payment Reference: %s"
	failedNote    = "OCPay payment failed via status polling. Payment Reference: %s. Please contact customer for alternative payment method."
)

// Config holds the engine policy settings
type Config struct {
	GatewayID       string
	SuccessStatus   types.OrderStatus
	StalenessWindow time.Duration
}

// ConfigFrom builds the engine policy from the service configuration
func ConfigFrom(ocpayConf *config.OCPayConfiguration, reconcileConf *config.ReconcileConfiguration) Config {
	return Config{
		GatewayID:       ocpayConf.GatewayID,
		SuccessStatus:   types.OrderStatus(ocpayConf.SuccessOrderStatus()),
		StalenessWindow: reconcileConf.StalenessWindow,
	}
}

// Reconciler is implemented by Engine
type Reconciler interface {
	Reconcile(ctx context.Context, orderID string, opts ...CallOption) (types.ReconcileResult, error)
}

// Engine maps a provider status lookup onto a guarded order transition
type Engine struct {
	store    types.OrderStore
	provider types.PaymentStatusChecker
	events   types.EventPublisher
	conf     Config
	now      func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithEventPublisher sets the sink for payment events
func WithEventPublisher(p types.EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// NewEngine creates a reconciliation engine. provider may be nil when OCPay is not configured,
// in which case every eligible order resolves to ErrProviderUnavailable.
func NewEngine(store types.OrderStore, provider types.PaymentStatusChecker, conf Config, opts ...Option) *Engine {
	if conf.SuccessStatus != types.OrderStatusCompleted {
		conf.SuccessStatus = types.OrderStatusProcessing
	}

	e := &Engine{
		store:    store,
		provider: provider,
		conf:     conf,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type callOptions struct {
	allowOnHold bool
	trigger     string
}

// CallOption tunes a single Reconcile call
type CallOption func(*callOptions)

// AllowOnHold also treats on-hold orders as awaiting confirmation
func AllowOnHold() CallOption {
	return func(o *callOptions) { o.allowOnHold = true }
}

// WithTrigger labels the call for logs and metrics
func WithTrigger(trigger string) CallOption {
	return func(o *callOptions) { o.trigger = trigger }
}

// Reconcile checks one order against the provider and applies at most one transition
func (e *Engine) Reconcile(ctx context.Context, orderID string, opts ...CallOption) (result types.ReconcileResult, err error) {
	o := callOptions{trigger: "direct"}
	for _, opt := range opts {
		opt(&o)
	}
	defer func() { observeOutcome(o.trigger, result, err) }()

	result.OrderID = orderID

	order, err := e.store.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, types.ErrOrderNotFound) {
			return result, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return result, fmt.Errorf("load order %s: %w", orderID, err)
	}
	result.Status = order.Status

	awaiting := []types.OrderStatus{types.OrderStatusPending}
	if o.allowOnHold {
		awaiting = append(awaiting, types.OrderStatusOnHold)
	}

	switch {
	case order.PaymentMethod != e.conf.GatewayID:
		return skipped(result, types.SkipPaymentMethod), nil
	case !statusIn(order.Status, awaiting):
		return skipped(result, types.SkipStatus), nil
	case order.PaymentReference == "":
		return skipped(result, types.SkipNoReference), nil
	case e.conf.StalenessWindow > 0 && order.Age(e.now()) > e.conf.StalenessWindow:
		return skipped(result, types.SkipStale), nil
	}

	fields := logger.Fields{
		"OrderID":    order.ID,
		"PaymentRef": order.PaymentReference,
		"Trigger":    o.trigger,
	}

	if e.provider == nil {
		logger.WithFields(fields).Warnf("Reconcile.CheckPayment: provider client not configured")
		return result, fmt.Errorf("%w: client not configured", ErrProviderUnavailable)
	}

	check, err := e.provider.CheckPayment(ctx, order.PaymentReference)
	if err != nil {
		fields["Error"] = fmt.Sprintf("%v", err)
		var payload interface{ InvalidPayload() bool }
		if errors.As(err, &payload) && payload.InvalidPayload() {
			logger.WithFields(fields).Errorf("Reconcile.CheckPayment: invalid response")
			return result, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
		logger.WithFields(fields).Warnf("Reconcile.CheckPayment: provider unavailable")
		return result, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if check == nil || check.Status == "" {
		logger.WithFields(fields).Errorf("Reconcile.CheckPayment: missing status")
		return result, fmt.Errorf("%w: missing status", ErrInvalidResponse)
	}
	result.ProviderStatus = check.Status

	now := e.now()
	if err := e.store.SetMeta(ctx, order.ID, map[string]string{
		types.MetaLastStatus:    string(check.Status),
		types.MetaLastCheckedAt: now.Format(time.RFC3339),
	}); err != nil {
		fields["Error"] = fmt.Sprintf("%v", err)
		logger.WithFields(fields).Warnf("Reconcile.SetMeta: failed to record last status")
		delete(fields, "Error")
	}

	switch check.Status {
	case types.PaymentStatusConfirmed:
		return e.confirm(ctx, order, awaiting, now, result, fields)
	case types.PaymentStatusFailed:
		if order.Status == types.OrderStatusOnHold {
			// already parked for manual recovery
			return skipped(result, types.SkipStatus), nil
		}
		return e.fail(ctx, order, now, result, fields)
	default:
		result.Outcome = types.OutcomeStillPending
		return result, nil
	}
}

// confirm moves the order to the success status if it is still awaiting confirmation
func (e *Engine) confirm(ctx context.Context, order *types.Order, awaiting []types.OrderStatus, now time.Time, result types.ReconcileResult, fields logger.Fields) (types.ReconcileResult, error) {
	applied, err := e.store.Transition(ctx, order.ID, types.StatusTransition{
		From: awaiting,
		To:   e.conf.SuccessStatus,
		Meta: map[string]string{types.MetaConfirmedAt: now.Format(time.RFC3339)},
		Note: fmt.Sprintf(confirmedNote, order.PaymentReference),
	})
	if err != nil {
		return result, err
	}
	if !applied {
		return e.raceLost(ctx, order.ID, result), nil
	}

	result.Outcome = types.OutcomeConfirmed
	result.Status = e.conf.SuccessStatus
	logger.WithFields(fields).Infof("Reconcile: payment confirmed")

	e.publish(ctx, types.EventPaymentCompleted, order, result.Status, now)
	return result, nil
}

// fail parks the order on-hold so it can be recovered manually
func (e *Engine) fail(ctx context.Context, order *types.Order, now time.Time, result types.ReconcileResult, fields logger.Fields) (types.ReconcileResult, error) {
	applied, err := e.store.Transition(ctx, order.ID, types.StatusTransition{
		From: []types.OrderStatus{types.OrderStatusPending},
		To:   types.OrderStatusOnHold,
		Meta: map[string]string{types.MetaFailedAt: now.Format(time.RFC3339)},
		Note: fmt.Sprintf(failedNote, order.PaymentReference),
	})
	if err != nil {
		return result, err
	}
	if !applied {
		return e.raceLost(ctx, order.ID, result), nil
	}

	result.Outcome = types.OutcomeFailed
	result.Status = types.OrderStatusOnHold
	logger.WithFields(fields).Infof("Reconcile: payment failed")

	e.publish(ctx, types.EventPaymentFailed, order, result.Status, now)
	return result, nil
}

// raceLost reports the status another trigger committed between the precondition check and the write
func (e *Engine) raceLost(ctx context.Context, orderID string, result types.ReconcileResult) types.ReconcileResult {
	if current, err := e.store.FindByID(ctx, orderID); err == nil {
		result.Status = current.Status
	}
	return skipped(result, types.SkipRaceLost)
}

func (e *Engine) publish(ctx context.Context, eventType types.EventType, order *types.Order, status types.OrderStatus, now time.Time) {
	if e.events == nil {
		return
	}

	event := types.PaymentEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		OrderID:      order.ID,
		CustomerID:   order.CustomerID,
		PaymentRef:   order.PaymentReference,
		Status:       status,
		Total:        order.Total,
		Currency:     order.Currency,
		BillingEmail: order.BillingEmail,
		BillingName:  order.BillingName,
		OccurredAt:   now,
	}
	if err := e.events.Publish(ctx, event); err != nil {
		logger.WithFields(logger.Fields{
			"Error":   fmt.Sprintf("%v", err),
			"OrderID": order.ID,
			"Event":   string(eventType),
		}).Errorf("Reconcile.Publish")
	}
}

func skipped(result types.ReconcileResult, reason types.SkipReason) types.ReconcileResult {
	result.Outcome = types.OutcomeSkipped
	result.SkipReason = reason
	return result
}

func statusIn(status types.OrderStatus, set []types.OrderStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
