package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/services/reconcile"
	"github.com/oneclickdz/ocpay-reconciler/storage"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	types.OrderStore
	finds   atomic.Int32
	findErr error
	panics  bool
}

func (s *countingStore) Find(ctx context.Context, query types.OrderQuery) ([]*types.Order, error) {
	s.finds.Add(1)
	if s.panics {
		panic("store exploded")
	}
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.OrderStore.Find(ctx, query)
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	fn    func(orderID string, call int) (types.ReconcileResult, error)
}

func (e *fakeEngine) Reconcile(ctx context.Context, orderID string, opts ...reconcile.CallOption) (types.ReconcileResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, orderID)
	call := len(e.calls)
	e.mu.Unlock()
	return e.fn(orderID, call)
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type recordingAlerter struct {
	mu    sync.Mutex
	stats []types.SweepStats
}

func (a *recordingAlerter) SendSweepAlert(ctx context.Context, stats types.SweepStats) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = append(a.stats, stats)
	return nil
}

func sweepConfig() SweepConfig {
	return SweepConfig{
		GatewayID:       "ocpay",
		StalenessWindow: 24 * time.Hour,
		RecentWindow:    30 * time.Minute,
		StuckAge:        time.Hour,
		BatchSize:       100,
		LockTTL:         5 * time.Minute,
		RetryAttempts:   1,
		RetryDelay:      time.Millisecond,
	}
}

func stillPending(orderID string, _ int) (types.ReconcileResult, error) {
	return types.ReconcileResult{OrderID: orderID, Outcome: types.OutcomeStillPending}, nil
}

func TestSweepLock(t *testing.T) {
	ctx := context.Background()

	t.Run("contention skips the cycle without querying orders", func(t *testing.T) {
		mr, client := test.SetupTestRedis(t)
		store := &countingStore{OrderStore: storage.NewOrderStore(test.SetupTestDB(t))}
		engine := &fakeEngine{fn: stillPending}
		sweeper := NewSweeper(engine, store, client, sweepConfig())

		require.NoError(t, mr.Set(sweepLockKey, "another-instance"))

		stats, err := sweeper.Run(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.True(t, stats.Skipped)
		assert.Equal(t, int32(0), store.finds.Load())
		assert.Empty(t, engine.Calls())

		last, err := sweeper.Recorder().LastRun(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.Nil(t, last)
	})

	t.Run("two concurrent sweeps run one batch", func(t *testing.T) {
		_, client := test.SetupTestRedis(t)
		base := storage.NewOrderStore(test.SetupTestDB(t))
		_, err := test.CreateTestOrder(base, nil)
		require.NoError(t, err)
		store := &countingStore{OrderStore: base}

		entered := make(chan struct{})
		release := make(chan struct{})
		engine := &fakeEngine{fn: func(orderID string, call int) (types.ReconcileResult, error) {
			close(entered)
			<-release
			return stillPending(orderID, call)
		}}
		sweeper := NewSweeper(engine, store, client, sweepConfig())

		done := make(chan types.SweepStats)
		go func() {
			stats, _ := sweeper.Run(ctx, types.SweepTierFull)
			done <- stats
		}()
		<-entered

		second, err := sweeper.Run(ctx, types.SweepTierRecent)
		require.NoError(t, err)
		assert.True(t, second.Skipped)

		close(release)
		first := <-done
		assert.False(t, first.Skipped)
		assert.Equal(t, 1, first.Checked)
		assert.Equal(t, int32(1), store.finds.Load())
	})

	t.Run("lock is taken with a ttl and released afterwards", func(t *testing.T) {
		mr, client := test.SetupTestRedis(t)
		store := storage.NewOrderStore(test.SetupTestDB(t))
		_, err := test.CreateTestOrder(store, nil)
		require.NoError(t, err)

		engine := &fakeEngine{fn: func(orderID string, call int) (types.ReconcileResult, error) {
			assert.True(t, mr.Exists(sweepLockKey))
			assert.Equal(t, 5*time.Minute, mr.TTL(sweepLockKey))
			return stillPending(orderID, call)
		}}
		sweeper := NewSweeper(engine, store, client, sweepConfig())

		_, err = sweeper.Run(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.False(t, mr.Exists(sweepLockKey))
	})

	t.Run("lock is released when the order loop panics", func(t *testing.T) {
		mr, client := test.SetupTestRedis(t)
		store := storage.NewOrderStore(test.SetupTestDB(t))
		for i := 0; i < 2; i++ {
			_, err := test.CreateTestOrder(store, nil)
			require.NoError(t, err)
		}

		engine := &fakeEngine{fn: func(orderID string, call int) (types.ReconcileResult, error) {
			if call == 1 {
				panic("engine exploded")
			}
			return stillPending(orderID, call)
		}}
		sweeper := NewSweeper(engine, store, client, sweepConfig())

		stats, err := sweeper.Run(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Checked)
		assert.Equal(t, 1, stats.Errors)
		assert.False(t, mr.Exists(sweepLockKey))
	})

	t.Run("lock is released when the query panics", func(t *testing.T) {
		mr, client := test.SetupTestRedis(t)
		store := &countingStore{OrderStore: storage.NewOrderStore(test.SetupTestDB(t)), panics: true}
		sweeper := NewSweeper(&fakeEngine{fn: stillPending}, store, client, sweepConfig())

		stats, err := sweeper.Run(ctx, types.SweepTierFull)
		assert.Error(t, err)
		assert.Contains(t, stats.Error, "store exploded")
		assert.False(t, mr.Exists(sweepLockKey))

		store.panics = false
		stats, err = sweeper.Run(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.False(t, stats.Skipped)
	})

	t.Run("an expired holder does not release a lock it no longer owns", func(t *testing.T) {
		mr, client := test.SetupTestRedis(t)

		cleanup, acquired, err := acquireDistributedLock(ctx, client, sweepLockKey, time.Minute, "Test")
		require.NoError(t, err)
		require.True(t, acquired)

		mr.FastForward(2 * time.Minute)
		_, acquired, err = acquireDistributedLock(ctx, client, sweepLockKey, time.Minute, "Test")
		require.NoError(t, err)
		require.True(t, acquired)

		cleanup()
		assert.True(t, mr.Exists(sweepLockKey))
	})
}

func TestSweepBatches(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("counts checked, updated and failed orders", func(t *testing.T) {
		_, client := test.SetupTestRedis(t)
		store := storage.NewOrderStore(test.SetupTestDB(t))
		for i := 0; i < 3; i++ {
			_, err := test.CreateTestOrder(store, map[string]interface{}{
				"created_at": now.Add(-time.Duration(10-i) * time.Minute),
			})
			require.NoError(t, err)
		}

		engine := &fakeEngine{fn: func(orderID string, call int) (types.ReconcileResult, error) {
			switch call {
			case 1:
				return types.ReconcileResult{OrderID: orderID, Outcome: types.OutcomeConfirmed}, nil
			case 2:
				return types.ReconcileResult{OrderID: orderID}, reconcile.ErrOrderNotFound
			default:
				return stillPending(orderID, call)
			}
		}}
		alerter := &recordingAlerter{}
		sweeper := NewSweeper(engine, store, client, sweepConfig())
		sweeper.SetAlerter(alerter)

		stats, err := sweeper.Run(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Checked)
		assert.Equal(t, 1, stats.Updated)
		assert.Equal(t, 1, stats.Errors)
		assert.Len(t, alerter.stats, 1)

		last, err := sweeper.Recorder().LastRun(ctx, types.SweepTierFull)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, 3, last.Checked)
		assert.Equal(t, 1, last.Updated)
	})

	t.Run("tiers select their own windows oldest first", func(t *testing.T) {
		_, client := test.SetupTestRedis(t)
		store := storage.NewOrderStore(test.SetupTestDB(t))

		ages := map[string]time.Duration{
			"fresh": 5 * time.Minute,
			"hour":  50 * time.Minute,
			"stuck": 3 * time.Hour,
			"old":   20 * time.Hour,
			"stale": 30 * time.Hour,
		}
		for id, age := range ages {
			_, err := test.CreateTestOrder(store, map[string]interface{}{
				"id":         id,
				"created_at": now.Add(-age),
			})
			require.NoError(t, err)
		}
		_, err := test.CreateTestOrder(store, map[string]interface{}{"id": "no-ref", "payment_ref": ""})
		require.NoError(t, err)
		_, err = test.CreateTestOrder(store, map[string]interface{}{"id": "cod", "payment_method": "cod"})
		require.NoError(t, err)
		_, err = test.CreateTestOrder(store, map[string]interface{}{"id": "held", "status": types.OrderStatusOnHold})
		require.NoError(t, err)

		cases := []struct {
			tier     types.SweepTier
			expected []string
		}{
			{types.SweepTierRecent, []string{"fresh"}},
			{types.SweepTierFull, []string{"old", "stuck", "hour", "fresh"}},
			{types.SweepTierStuck, []string{"old", "stuck"}},
		}
		for _, tc := range cases {
			engine := &fakeEngine{fn: stillPending}
			sweeper := NewSweeper(engine, store, client, sweepConfig())

			_, err := sweeper.Run(ctx, tc.tier)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, engine.Calls(), string(tc.tier))
		}
	})

	t.Run("batch size caps the cycle", func(t *testing.T) {
		_, client := test.SetupTestRedis(t)
		store := storage.NewOrderStore(test.SetupTestDB(t))
		for i := 0; i < 5; i++ {
			_, err := test.CreateTestOrder(store, nil)
			require.NoError(t, err)
		}

		conf := sweepConfig()
		conf.BatchSize = 2
		engine := &fakeEngine{fn: stillPending}
		sweeper := NewSweeper(engine, store, client, conf)

		stats, err := sweeper.Run(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Checked)
	})

	t.Run("provider outages are retried within the cycle", func(t *testing.T) {
		_, client := test.SetupTestRedis(t)
		store := storage.NewOrderStore(test.SetupTestDB(t))
		_, err := test.CreateTestOrder(store, nil)
		require.NoError(t, err)

		engine := &fakeEngine{fn: func(orderID string, call int) (types.ReconcileResult, error) {
			if call < 3 {
				return types.ReconcileResult{OrderID: orderID}, reconcile.ErrProviderUnavailable
			}
			return types.ReconcileResult{OrderID: orderID, Outcome: types.OutcomeFailed}, nil
		}}
		conf := sweepConfig()
		conf.RetryAttempts = 3
		sweeper := NewSweeper(engine, store, client, conf)

		stats, err := sweeper.Run(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.Len(t, engine.Calls(), 3)
		assert.Equal(t, 1, stats.Updated)
		assert.Equal(t, 0, stats.Errors)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		_, client := test.SetupTestRedis(t)
		store := storage.NewOrderStore(test.SetupTestDB(t))
		_, err := test.CreateTestOrder(store, nil)
		require.NoError(t, err)

		engine := &fakeEngine{fn: func(orderID string, call int) (types.ReconcileResult, error) {
			return types.ReconcileResult{OrderID: orderID}, reconcile.ErrInvalidResponse
		}}
		conf := sweepConfig()
		conf.RetryAttempts = 3
		sweeper := NewSweeper(engine, store, client, conf)

		stats, err := sweeper.Run(ctx, types.SweepTierFull)
		require.NoError(t, err)
		assert.Len(t, engine.Calls(), 1)
		assert.Equal(t, 1, stats.Errors)
	})

	t.Run("unknown tier", func(t *testing.T) {
		_, client := test.SetupTestRedis(t)
		sweeper := NewSweeper(&fakeEngine{fn: stillPending}, nil, client, sweepConfig())

		_, err := sweeper.Run(ctx, "hourly")
		assert.True(t, errors.Is(err, ErrUnknownTier))
	})
}
