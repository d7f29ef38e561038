package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/services/checkout"
	"github.com/oneclickdz/ocpay-reconciler/services/ocpay"
	"github.com/oneclickdz/ocpay-reconciler/services/poller"
	"github.com/oneclickdz/ocpay-reconciler/services/reconcile"
	"github.com/oneclickdz/ocpay-reconciler/types"
	u "github.com/oneclickdz/ocpay-reconciler/utils"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	"github.com/oneclickdz/ocpay-reconciler/utils/token"
)

// Return page outcomes
const (
	ReturnSuccess = "success"
	ReturnFailed  = "failed"
	ReturnPending = "pending"
)

var returnMessages = map[string]string{
	ReturnSuccess: "Your order has been placed and payment is being processed.",
	ReturnFailed:  "Unfortunately, your payment could not be processed. Please try again or choose a different payment method.",
	ReturnPending: "Your payment is being confirmed. This may take a few moments. You will receive an email notification once payment is confirmed.",
}

// Config holds the storefront controller settings
type Config struct {
	GatewayID         string
	Secret            string
	NonceLifespan     time.Duration
	PollMaxAttempts   int
	PollRedirectDelay time.Duration
}

// ConfigFrom builds the controller settings from the service configuration
func ConfigFrom(ocpayConf *config.OCPayConfiguration, authConf *config.AuthConfiguration, reconcileConf *config.ReconcileConfiguration) Config {
	return Config{
		GatewayID:         ocpayConf.GatewayID,
		Secret:            authConf.Secret,
		NonceLifespan:     authConf.NonceLifespan,
		PollMaxAttempts:   reconcileConf.PollMaxAttempts,
		PollRedirectDelay: reconcileConf.PollRedirectDelay,
	}
}

// Controller serves the storefront endpoints
type Controller struct {
	store    types.OrderStore
	engine   reconcile.Reconciler
	triggers *reconcile.Triggers
	status   *reconcile.StatusService
	checkout *checkout.Service
	conf     Config
}

// NewController creates the storefront controller with injected services
func NewController(store types.OrderStore, engine reconcile.Reconciler, triggers *reconcile.Triggers, checkoutService *checkout.Service, conf Config) *Controller {
	if conf.PollMaxAttempts <= 0 {
		conf.PollMaxAttempts = 40
	}
	if conf.PollRedirectDelay <= 0 {
		conf.PollRedirectDelay = 2 * time.Second
	}
	return &Controller{
		store:    store,
		engine:   engine,
		triggers: triggers,
		status:   reconcile.NewStatusService(engine, store, conf.GatewayID),
		checkout: checkoutService,
		conf:     conf,
	}
}

// CheckOrderStatus is the poll endpoint. The nonce is verified by middleware before it runs.
func (ctrl *Controller) CheckOrderStatus(ctx *gin.Context) {
	orderID := ctx.Param("order_id")
	if orderID == "" {
		u.StorefrontResponse(ctx, http.StatusBadRequest, false, types.MessageData{Message: "Invalid order ID."})
		return
	}

	data, err := ctrl.status.Check(ctx.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, reconcile.ErrOrderNotFound) || errors.Is(err, reconcile.ErrNotGatewayOrder) {
			u.StorefrontResponse(ctx, http.StatusNotFound, false, types.MessageData{Message: "Invalid order."})
			return
		}
		logger.WithFields(logger.Fields{
			"Error":   fmt.Sprintf("%v", err),
			"OrderID": orderID,
		}).Errorf("CheckOrderStatus")
		u.StorefrontResponse(ctx, http.StatusInternalServerError, false, types.MessageData{Message: "Unable to check payment status."})
		return
	}

	u.StorefrontResponse(ctx, http.StatusOK, true, data)
}

// PaymentReturn handles a customer coming back from the hosted payment page
func (ctrl *Controller) PaymentReturn(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()

	var (
		order *types.Order
		err   error
	)
	switch ref, orderID := ctx.Query("ref"), ctx.Query("order_id"); {
	case ref != "":
		if !ocpay.ValidPaymentRef(ref) {
			u.APIResponse(ctx, http.StatusBadRequest, "error", "Invalid payment reference.", nil)
			return
		}
		order, err = ctrl.store.FindByPaymentReference(reqCtx, ref)
	case orderID != "":
		order, err = ctrl.store.FindByID(reqCtx, orderID)
	default:
		u.APIResponse(ctx, http.StatusBadRequest, "error", "Invalid payment reference.", nil)
		return
	}
	if err != nil {
		if errors.Is(err, types.ErrOrderNotFound) {
			u.APIResponse(ctx, http.StatusNotFound, "error", "Order not found.", nil)
			return
		}
		logger.WithFields(logger.Fields{
			"Error": fmt.Sprintf("%v", err),
		}).Errorf("PaymentReturn.FindOrder")
		u.APIResponse(ctx, http.StatusInternalServerError, "error", "Failed to load order", nil)
		return
	}
	if order.PaymentMethod != ctrl.conf.GatewayID {
		u.APIResponse(ctx, http.StatusNotFound, "error", "Order not found.", nil)
		return
	}

	status := order.Status
	result, err := ctrl.engine.Reconcile(reqCtx, order.ID, reconcile.WithTrigger("return"))
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error":      fmt.Sprintf("%v", err),
			"OrderID":    order.ID,
			"PaymentRef": order.PaymentReference,
		}).Warnf("PaymentReturn.Reconcile")
	} else if result.Status != "" {
		status = result.Status
	}

	outcome := returnOutcome(status, result)
	u.APIResponse(ctx, http.StatusOK, "success", "OK", types.PaymentReturnResponse{
		OrderID:     order.ID,
		Result:      outcome,
		Message:     returnMessages[outcome],
		RedirectURL: order.ReturnURL,
	})
}

func returnOutcome(status types.OrderStatus, result types.ReconcileResult) string {
	switch {
	case status == types.OrderStatusProcessing || status == types.OrderStatusCompleted:
		return ReturnSuccess
	case result.Outcome == types.OutcomeFailed, status == types.OrderStatusFailed, status == types.OrderStatusCancelled:
		return ReturnFailed
	case status == types.OrderStatusOnHold && result.ProviderStatus == types.PaymentStatusFailed:
		return ReturnFailed
	default:
		return ReturnPending
	}
}

// CreatePayment creates a hosted payment link for an order at checkout
func (ctrl *Controller) CreatePayment(ctx *gin.Context) {
	orderID := ctx.Param("order_id")

	response, err := ctrl.checkout.CreatePaymentLink(ctx.Request.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrOrderNotFound):
			u.APIResponse(ctx, http.StatusNotFound, "error", "Order not found.", nil)
		case errors.Is(err, checkout.ErrOrderNotPayable):
			u.APIResponse(ctx, http.StatusBadRequest, "error", err.Error(), nil)
		case errors.Is(err, ocpay.ErrMissingAPIKey):
			u.APIResponse(ctx, http.StatusServiceUnavailable, "error", ocpay.UserMessage(err), nil)
		default:
			var apiErr *ocpay.APIError
			code := http.StatusBadGateway
			if errors.As(err, &apiErr) && apiErr.Kind == ocpay.KindValidation {
				code = http.StatusBadRequest
			}
			u.APIResponse(ctx, code, "error", ocpay.UserMessage(err), nil)
		}
		return
	}

	u.APIResponse(ctx, http.StatusCreated, "success", "Payment link created", response)
}

// ThankYou reconciles the order on the order-received page and hands back a poll session config
func (ctrl *Controller) ThankYou(ctx *gin.Context) {
	orderID := ctx.Param("order_id")
	result, _ := ctrl.triggers.ThankYou(ctx.Request.Context(), orderID)

	ctrl.pageView(ctx, orderID, result, true)
}

// ViewOrder reconciles the order on the customer's order-detail page
func (ctrl *Controller) ViewOrder(ctx *gin.Context) {
	orderID := ctx.Param("order_id")
	result, _ := ctrl.triggers.OrderView(ctx.Request.Context(), orderID)

	ctrl.pageView(ctx, orderID, result, false)
}

func (ctrl *Controller) pageView(ctx *gin.Context, orderID string, result types.ReconcileResult, withPoll bool) {
	order, err := ctrl.store.FindByID(ctx.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, types.ErrOrderNotFound) {
			u.APIResponse(ctx, http.StatusNotFound, "error", "Order not found.", nil)
			return
		}
		u.APIResponse(ctx, http.StatusInternalServerError, "error", "Failed to load order", nil)
		return
	}

	response := types.PageViewResponse{
		OrderID: order.ID,
		Status:  order.Status,
		Updated: result.Updated(),
	}

	if withPoll && order.PaymentMethod == ctrl.conf.GatewayID && order.Status == types.OrderStatusPending {
		poll, err := ctrl.pollConfig(order)
		if err != nil {
			logger.WithFields(logger.Fields{
				"Error":   fmt.Sprintf("%v", err),
				"OrderID": order.ID,
			}).Errorf("ThankYou.PollConfig")
		} else {
			response.Poll = poll
		}
	}

	u.APIResponse(ctx, http.StatusOK, "success", "OK", response)
}

func (ctrl *Controller) pollConfig(order *types.Order) (*types.PollConfig, error) {
	nonce, err := token.GeneratePollNonce(ctrl.conf.Secret, order.ID, order.CustomerID, ctrl.conf.NonceLifespan)
	if err != nil {
		return nil, err
	}

	intervals := make([]int64, 0, len(poller.Intervals))
	for _, d := range poller.Intervals {
		intervals = append(intervals, d.Milliseconds())
	}

	return &types.PollConfig{
		OrderID:         order.ID,
		Endpoint:        fmt.Sprintf("/v1/orders/%s/check", order.ID),
		Nonce:           nonce,
		IntervalsMs:     intervals,
		MaxAttempts:     ctrl.conf.PollMaxAttempts,
		RedirectDelayMs: ctrl.conf.PollRedirectDelay.Milliseconds(),
	}, nil
}

// CustomerOrders reconciles a bounded number of the customer's recent pending orders
func (ctrl *Controller) CustomerOrders(ctx *gin.Context) {
	results := ctrl.triggers.CustomerOrderList(ctx.Request.Context(), ctx.Param("customer_id"))
	if results == nil {
		results = []types.ReconcileResult{}
	}

	u.APIResponse(ctx, http.StatusOK, "success", "OK", results)
}
