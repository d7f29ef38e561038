package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) NewTimer(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// last returns the most recently armed timer
func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type scriptedChecker struct {
	mu      sync.Mutex
	calls   int
	replies []func() (types.StatusCheckData, error)
}

func (c *scriptedChecker) Check(ctx context.Context, orderID string) (types.StatusCheckData, error) {
	c.mu.Lock()
	index := c.calls
	c.calls++
	c.mu.Unlock()

	if index < len(c.replies) {
		return c.replies[index]()
	}
	return types.StatusCheckData{Status: "pending"}, nil
}

func (c *scriptedChecker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func reply(status string) func() (types.StatusCheckData, error) {
	return func() (types.StatusCheckData, error) {
		return types.StatusCheckData{Status: status}, nil
	}
}

func networkError() (types.StatusCheckData, error) {
	return types.StatusCheckData{}, errors.New("connection reset")
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestSession(checker Checker, maxAttempts int) (*Session, *fakeClock, *eventLog) {
	clock := &fakeClock{}
	log := &eventLog{}
	session := NewSession("1001", checker, Config{MaxAttempts: maxAttempts, RedirectDelay: 2 * time.Second},
		WithTimerFactory(clock.NewTimer),
		WithObserver(log.observe),
	)
	return session, clock, log
}

func TestSessionSchedule(t *testing.T) {
	t.Run("interval table for attempts 1 to 12", func(t *testing.T) {
		checker := &scriptedChecker{}
		session, clock, _ := newTestSession(checker, 40)

		require.NoError(t, session.Start(context.Background()))

		var delays []int64
		for i := 0; i < 12; i++ {
			timer := clock.last()
			require.NotNil(t, timer)
			delays = append(delays, timer.delay.Milliseconds())
			timer.fn()
		}

		assert.Equal(t, []int64{2000, 3000, 5000, 5000, 10000, 10000, 15000, 15000, 20000, 30000, 30000, 30000}, delays)
		assert.Equal(t, 13, checker.Calls())
		assert.Equal(t, StateChecking, session.State())
	})

	t.Run("max attempts ends in timeout, not failed", func(t *testing.T) {
		checker := &scriptedChecker{}
		session, clock, log := newTestSession(checker, 3)

		require.NoError(t, session.Start(context.Background()))
		clock.last().fn()
		clock.last().fn()

		assert.Equal(t, StateTimeout, session.State())
		assert.Equal(t, 3, checker.Calls())
		assert.Equal(t, 2, clock.count())
		assert.Contains(t, log.types(), EventTimeout)
		assert.NotContains(t, log.types(), EventFailed)

		// a stale timer firing after the timeout issues nothing
		clock.last().fn()
		assert.Equal(t, 3, checker.Calls())

		select {
		case <-session.Done():
		default:
			t.Fatal("session should be done")
		}
	})

	t.Run("network error keeps checking at the same table position", func(t *testing.T) {
		checker := &scriptedChecker{replies: []func() (types.StatusCheckData, error){
			reply("pending"),
			networkError,
			reply("processing"),
		}}
		session, clock, log := newTestSession(checker, 40)

		require.NoError(t, session.Start(context.Background()))
		clock.last().fn()

		assert.Equal(t, StateChecking, session.State())
		assert.Equal(t, 2, session.Attempt())
		assert.Equal(t, 3*time.Second, clock.last().delay)
		assert.Contains(t, log.types(), EventError)

		clock.last().fn()
		assert.Equal(t, StateConfirmed, session.State())
	})

	t.Run("rejected checks are retried too", func(t *testing.T) {
		checker := &scriptedChecker{replies: []func() (types.StatusCheckData, error){
			func() (types.StatusCheckData, error) {
				return types.StatusCheckData{}, ErrCheckRejected
			},
		}}
		session, clock, _ := newTestSession(checker, 40)

		require.NoError(t, session.Start(context.Background()))
		assert.Equal(t, StateChecking, session.State())
		assert.Equal(t, 2*time.Second, clock.last().delay)
	})
}

func TestSessionOutcomes(t *testing.T) {
	t.Run("confirmed redirects after the delay", func(t *testing.T) {
		for _, status := range []string{"processing", "completed"} {
			checker := &scriptedChecker{replies: []func() (types.StatusCheckData, error){reply(status)}}
			session, clock, log := newTestSession(checker, 40)

			require.NoError(t, session.Start(context.Background()))
			assert.Equal(t, StateConfirmed, session.State())

			redirect := clock.last()
			require.NotNil(t, redirect)
			assert.Equal(t, 2*time.Second, redirect.delay)
			assert.NotContains(t, log.types(), EventRedirect)

			redirect.fn()
			assert.Equal(t, []EventType{EventStarted, EventCheck, EventConfirmed, EventRedirect}, log.types())
		}
	})

	t.Run("stop cancels a pending redirect", func(t *testing.T) {
		checker := &scriptedChecker{replies: []func() (types.StatusCheckData, error){reply("processing")}}
		session, clock, log := newTestSession(checker, 40)

		require.NoError(t, session.Start(context.Background()))
		session.Stop()

		redirect := clock.last()
		assert.True(t, redirect.stopped)
		redirect.fn()
		assert.NotContains(t, log.types(), EventRedirect)
	})

	t.Run("failed and cancelled stop without redirect", func(t *testing.T) {
		for _, status := range []string{"failed", "cancelled"} {
			checker := &scriptedChecker{replies: []func() (types.StatusCheckData, error){reply(status)}}
			session, clock, log := newTestSession(checker, 40)

			require.NoError(t, session.Start(context.Background()))
			assert.Equal(t, StateFailed, session.State())
			assert.Equal(t, 0, clock.count())
			assert.Contains(t, log.types(), EventFailed)
		}
	})

	t.Run("on-hold and unknown statuses keep polling", func(t *testing.T) {
		checker := &scriptedChecker{replies: []func() (types.StatusCheckData, error){
			reply("on-hold"),
			reply("refunded"),
		}}
		session, clock, _ := newTestSession(checker, 40)

		require.NoError(t, session.Start(context.Background()))
		clock.last().fn()
		assert.Equal(t, StateChecking, session.State())
		assert.Equal(t, 2, checker.Calls())
	})
}

func TestSessionControls(t *testing.T) {
	t.Run("check now skips the wait without resetting the counter", func(t *testing.T) {
		checker := &scriptedChecker{}
		session, clock, _ := newTestSession(checker, 40)

		require.NoError(t, session.Start(context.Background()))
		clock.last().fn()
		pending := clock.last()
		assert.Equal(t, 3*time.Second, pending.delay)

		session.CheckNow()
		assert.True(t, pending.stopped)
		assert.Equal(t, 3, session.Attempt())
		assert.Equal(t, 5*time.Second, clock.last().delay)

		// the cancelled timer must not produce an extra check
		pending.fn()
		assert.Equal(t, 3, checker.Calls())
	})

	t.Run("nothing fires after stop", func(t *testing.T) {
		checker := &scriptedChecker{}
		session, clock, _ := newTestSession(checker, 40)

		require.NoError(t, session.Start(context.Background()))
		pending := clock.last()

		session.Stop()
		assert.True(t, pending.stopped)

		pending.fn()
		session.CheckNow()
		assert.Equal(t, 1, checker.Calls())
		assert.Equal(t, 1, clock.count())
	})

	t.Run("start twice", func(t *testing.T) {
		session, _, _ := newTestSession(&scriptedChecker{}, 40)

		require.NoError(t, session.Start(context.Background()))
		assert.ErrorIs(t, session.Start(context.Background()), ErrAlreadyStarted)
	})

	t.Run("default max attempts", func(t *testing.T) {
		session := NewSession("1001", &scriptedChecker{}, Config{})
		assert.Equal(t, 40, session.conf.MaxAttempts)
		assert.Equal(t, StateIdle, session.State())
	})
}
