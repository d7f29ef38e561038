package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	"golang.org/x/sync/singleflight"
)

// checkTimeout bounds a shared poll reconciliation. It covers the provider's own request timeout.
const checkTimeout = 45 * time.Second

// ErrNotGatewayOrder means the order was not paid through the gateway
var ErrNotGatewayOrder = errors.New("order is not paid through the gateway")

// StatusService answers poll checks: it reconciles the order and reports its current status.
// Concurrent checks of one order share a single reconciliation, which outlives any one caller.
type StatusService struct {
	engine    Reconciler
	store     types.OrderStore
	gatewayID string
	timeout   time.Duration
	group     singleflight.Group
}

// NewStatusService creates a new StatusService
func NewStatusService(engine Reconciler, store types.OrderStore, gatewayID string) *StatusService {
	return &StatusService{engine: engine, store: store, gatewayID: gatewayID, timeout: checkTimeout}
}

// Check reconciles the order and returns its status. Provider failures are logged and reported as not updated.
// A caller that goes away stops waiting without cancelling the check for the callers that joined it.
func (s *StatusService) Check(ctx context.Context, orderID string) (types.StatusCheckData, error) {
	ch := s.group.DoChan(orderID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.check(shared, orderID)
	})

	select {
	case <-ctx.Done():
		return types.StatusCheckData{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return types.StatusCheckData{}, res.Err
		}
		return res.Val.(types.StatusCheckData), nil
	}
}

func (s *StatusService) check(ctx context.Context, orderID string) (types.StatusCheckData, error) {
	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, types.ErrOrderNotFound) {
			return types.StatusCheckData{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return types.StatusCheckData{}, err
	}
	if order.PaymentMethod != s.gatewayID {
		return types.StatusCheckData{}, ErrNotGatewayOrder
	}

	result, err := s.engine.Reconcile(ctx, orderID, WithTrigger("poll"))
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error":   fmt.Sprintf("%v", err),
			"OrderID": orderID,
		}).Warnf("StatusService.Reconcile")
	}

	status := order.Status
	switch {
	case err == nil && result.Updated():
		status = result.Status
	case err == nil && result.SkipReason == types.SkipRaceLost:
		status = result.Status
	}

	return types.StatusCheckData{
		Updated: err == nil && result.Updated(),
		Status:  string(status),
	}, nil
}
