package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/services/events"
	"github.com/oneclickdz/ocpay-reconciler/storage"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubReconciler struct {
	mu    sync.Mutex
	calls []string
	opts  []callOptions
	fn    func(orderID string) (types.ReconcileResult, error)
}

func (s *stubReconciler) Reconcile(ctx context.Context, orderID string, opts ...CallOption) (types.ReconcileResult, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	s.mu.Lock()
	s.calls = append(s.calls, orderID)
	s.opts = append(s.opts, o)
	s.mu.Unlock()
	return s.fn(orderID)
}

type slowSink struct {
	delay time.Duration
	mu    sync.Mutex
	seen  []types.EventType
}

func (s *slowSink) Name() string { return "slow" }

func (s *slowSink) Handle(ctx context.Context, event types.PaymentEvent) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, event.Type)
	return nil
}

func triggerConfig() TriggerConfig {
	return TriggerConfig{
		GatewayID:         "ocpay",
		StalenessWindow:   24 * time.Hour,
		Timeout:           time.Second,
		CustomerListLimit: 5,
		AdminListLimit:    20,
	}
}

func TestTriggersSwallowFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("provider errors are not surfaced", func(t *testing.T) {
		stub := &stubReconciler{fn: func(id string) (types.ReconcileResult, error) {
			return types.ReconcileResult{OrderID: id}, ErrProviderUnavailable
		}}
		triggers := NewTriggers(stub, nil, triggerConfig())

		_, ok := triggers.ThankYou(ctx, "order-1")
		assert.False(t, ok)
		assert.Equal(t, []string{"order-1"}, stub.calls)
		assert.Equal(t, "thank_you", stub.opts[0].trigger)
	})

	t.Run("panics are recovered", func(t *testing.T) {
		stub := &stubReconciler{fn: func(string) (types.ReconcileResult, error) {
			panic("boom")
		}}
		triggers := NewTriggers(stub, nil, triggerConfig())

		assert.NotPanics(t, func() {
			result, ok := triggers.OrderView(ctx, "order-2")
			assert.False(t, ok)
			assert.Equal(t, "order-2", result.OrderID)
		})
	})

	t.Run("admin view rechecks on-hold orders", func(t *testing.T) {
		stub := &stubReconciler{fn: func(id string) (types.ReconcileResult, error) {
			return types.ReconcileResult{OrderID: id, Outcome: types.OutcomeStillPending}, nil
		}}
		triggers := NewTriggers(stub, nil, triggerConfig())

		_, ok := triggers.AdminOrderView(ctx, "order-3")
		assert.True(t, ok)
		assert.True(t, stub.opts[0].allowOnHold)
		assert.Equal(t, "admin_order_view", stub.opts[0].trigger)
	})

	t.Run("async mode returns immediately and finishes in the background", func(t *testing.T) {
		release := make(chan struct{})
		stub := &stubReconciler{fn: func(id string) (types.ReconcileResult, error) {
			<-release
			return types.ReconcileResult{OrderID: id}, errors.New("late failure")
		}}
		conf := triggerConfig()
		conf.Async = true
		triggers := NewTriggers(stub, nil, conf)

		reqCtx, cancel := context.WithCancel(ctx)
		_, ok := triggers.ThankYou(reqCtx, "order-4")
		cancel()
		assert.False(t, ok)

		close(release)
		triggers.Wait()
		assert.Equal(t, []string{"order-4"}, stub.calls)
	})
}

func TestTriggerSlowEventSinks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewOrderStore(test.SetupTestDB(t))
	order, err := test.CreateTestOrder(store, nil)
	require.NoError(t, err)

	provider := &test.MockProvider{}
	provider.On("CheckPayment", mock.Anything, order.PaymentReference).
		Return(test.CheckResult(order.PaymentReference, types.PaymentStatusConfirmed), nil)

	sink := &slowSink{delay: 2 * time.Second}
	dispatcher := events.NewDispatcher(sink)
	engine := NewEngine(store, provider, defaultConfig(), WithEventPublisher(dispatcher))

	conf := triggerConfig()
	conf.Timeout = 100 * time.Millisecond
	triggers := NewTriggers(engine, store, conf)

	start := time.Now()
	result, ok := triggers.ThankYou(ctx, order.ID)
	elapsed := time.Since(start)

	require.True(t, ok)
	assert.Equal(t, types.OutcomeConfirmed, result.Outcome)
	assert.Less(t, elapsed, time.Second, "page view waited on event sinks")

	require.NoError(t, dispatcher.Close())
	sink.mu.Lock()
	assert.Equal(t, []types.EventType{types.EventPaymentCompleted}, sink.seen)
	sink.mu.Unlock()
}

func TestTriggerOrderLists(t *testing.T) {
	ctx := context.Background()
	store := storage.NewOrderStore(test.SetupTestDB(t))
	provider := &test.MockProvider{}
	provider.On("CheckPayment", mock.Anything, mock.Anything).
		Return(test.CheckResult("abc123def456", types.PaymentStatusPending), nil)
	engine := NewEngine(store, provider, defaultConfig())

	now := time.Now()
	for i := 0; i < 7; i++ {
		_, err := test.CreateTestOrder(store, map[string]interface{}{
			"created_at": now.Add(-time.Duration(i+1) * time.Minute),
		})
		require.NoError(t, err)
	}
	other, err := test.CreateTestOrder(store, map[string]interface{}{"customer_id": "customer-2"})
	require.NoError(t, err)
	_, err = test.CreateTestOrder(store, map[string]interface{}{"created_at": now.Add(-30 * time.Hour)})
	require.NoError(t, err)
	_, err = test.CreateTestOrder(store, map[string]interface{}{"status": types.OrderStatusProcessing})
	require.NoError(t, err)

	triggers := NewTriggers(engine, store, triggerConfig())

	t.Run("customer list is bounded to the customer's newest orders", func(t *testing.T) {
		results := triggers.CustomerOrderList(ctx, "customer-1")
		require.Len(t, results, 5)
		for _, result := range results {
			assert.NotEqual(t, other.ID, result.OrderID)
			assert.Equal(t, types.OutcomeStillPending, result.Outcome)
		}
	})

	t.Run("guest customers trigger nothing", func(t *testing.T) {
		assert.Nil(t, triggers.CustomerOrderList(ctx, ""))
	})

	t.Run("admin list spans customers but skips stale and settled orders", func(t *testing.T) {
		results := triggers.AdminOrderList(ctx)
		assert.Len(t, results, 8)
	})
}
