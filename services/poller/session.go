package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/types"
)

// State is the state of a poll session
type State string

const (
	StateIdle      State = "idle"
	StateChecking  State = "checking"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
	StateTimeout   State = "timeout"
)

// Terminal reports whether no further checks follow the state
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimeout
}

// EventType names what happened in a session
type EventType string

const (
	EventStarted   EventType = "started"
	EventCheck     EventType = "check"
	EventScheduled EventType = "scheduled"
	EventError     EventType = "error"
	EventConfirmed EventType = "confirmed"
	EventFailed    EventType = "failed"
	EventTimeout   EventType = "timeout"
	EventRedirect  EventType = "redirect"
)

// Event is delivered to the session observer
type Event struct {
	Type        EventType
	State       State
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Status      string
	Err         error
}

// Observer receives session events. It is called without the session lock held.
type Observer func(Event)

// Checker performs one status check of an order
type Checker interface {
	Check(ctx context.Context, orderID string) (types.StatusCheckData, error)
}

// Timer is a scheduled callback that can be cancelled
type Timer interface {
	Stop() bool
}

// TimerFactory schedules fn to run once after d
type TimerFactory func(d time.Duration, fn func()) Timer

// Intervals is the delay after each attempt; attempts past the table reuse the last entry
var Intervals = []time.Duration{
	2 * time.Second,
	3 * time.Second,
	5 * time.Second,
	5 * time.Second,
	10 * time.Second,
	10 * time.Second,
	15 * time.Second,
	15 * time.Second,
	20 * time.Second,
	30 * time.Second,
}

// Delay returns the wait before the check that follows the given attempt
func Delay(attempt int) time.Duration {
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(Intervals) {
		index = len(Intervals) - 1
	}
	return Intervals[index]
}

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("poll session already started")
)

// Config tunes a session
type Config struct {
	MaxAttempts   int
	RedirectDelay time.Duration
}

// Option configures a Session
type Option func(*Session)

// WithTimerFactory replaces the wall-clock timer
func WithTimerFactory(factory TimerFactory) Option {
	return func(s *Session) { s.newTimer = factory }
}

// WithObserver sets the event observer
func WithObserver(observer Observer) Option {
	return func(s *Session) { s.observer = observer }
}

// Session drives the adaptive polling of one order until it is confirmed, failed or timed out
type Session struct {
	orderID  string
	checker  Checker
	conf     Config
	observer Observer
	newTimer TimerFactory

	mu       sync.Mutex
	state    State
	attempt  int
	inFlight bool
	stopped  bool
	gen      uint64
	timer    Timer
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// NewSession creates an idle poll session
func NewSession(orderID string, checker Checker, conf Config, opts ...Option) *Session {
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = 40
	}
	if conf.RedirectDelay < 0 {
		conf.RedirectDelay = 0
	}

	s := &Session{
		orderID:  orderID,
		checker:  checker,
		conf:     conf,
		observer: func(Event) {},
		newTimer: func(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) },
		state:    StateIdle,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start issues the first check immediately and schedules the following ones
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle || s.stopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateChecking
	gen := s.gen
	s.mu.Unlock()

	s.emit(Event{Type: EventStarted, State: StateChecking, MaxAttempts: s.conf.MaxAttempts})
	s.check(gen)
	return nil
}

// CheckNow cancels the pending scheduled check and checks immediately.
// The attempt counter and the interval position carry on. It is a no-op while a check is in flight.
func (s *Session) CheckNow() {
	s.mu.Lock()
	if s.stopped || s.state != StateChecking || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.stopTimerLocked()
	gen := s.gen
	s.mu.Unlock()

	s.check(gen)
}

// Stop clears any pending timer; nothing fires after it returns
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.gen++
	s.stopTimerLocked()
	if s.cancel != nil {
		s.cancel()
	}
	s.closeDone()
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the number of checks issued so far
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Done is closed when the session reaches a terminal state or is stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) check(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen || s.state != StateChecking || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.timer = nil
	s.attempt++
	attempt := s.attempt
	ctx := s.ctx
	s.mu.Unlock()

	s.emit(Event{Type: EventCheck, State: StateChecking, Attempt: attempt, MaxAttempts: s.conf.MaxAttempts})

	data, err := s.checker.Check(ctx, s.orderID)

	s.mu.Lock()
	s.inFlight = false
	if s.stopped {
		s.mu.Unlock()
		return
	}

	var events []Event
	switch {
	case err != nil:
		events = append(events, Event{Type: EventError, State: StateChecking, Attempt: attempt, MaxAttempts: s.conf.MaxAttempts, Err: err})
		events = append(events, s.scheduleLocked())
	case isConfirmed(data.Status):
		s.finishLocked(StateConfirmed)
		events = append(events, Event{Type: EventConfirmed, State: StateConfirmed, Attempt: attempt, MaxAttempts: s.conf.MaxAttempts, Status: data.Status})
		s.scheduleRedirectLocked()
	case isFailed(data.Status):
		s.finishLocked(StateFailed)
		events = append(events, Event{Type: EventFailed, State: StateFailed, Attempt: attempt, MaxAttempts: s.conf.MaxAttempts, Status: data.Status})
	default:
		events = append(events, s.scheduleLocked())
	}
	s.mu.Unlock()

	for _, event := range events {
		s.emit(event)
	}
}

// scheduleLocked arms the next check, or times the session out once the attempts are used up
func (s *Session) scheduleLocked() Event {
	if s.attempt >= s.conf.MaxAttempts {
		s.finishLocked(StateTimeout)
		return Event{Type: EventTimeout, State: StateTimeout, Attempt: s.attempt, MaxAttempts: s.conf.MaxAttempts}
	}

	delay := Delay(s.attempt)
	gen := s.gen
	s.timer = s.newTimer(delay, func() { s.check(gen) })
	return Event{Type: EventScheduled, State: StateChecking, Attempt: s.attempt, MaxAttempts: s.conf.MaxAttempts, Delay: delay}
}

func (s *Session) scheduleRedirectLocked() {
	gen := s.gen
	s.timer = s.newTimer(s.conf.RedirectDelay, func() {
		s.mu.Lock()
		fire := !s.stopped && gen == s.gen
		s.timer = nil
		s.mu.Unlock()

		if fire {
			s.emit(Event{Type: EventRedirect, State: StateConfirmed, Delay: s.conf.RedirectDelay})
		}
	})
}

func (s *Session) finishLocked(state State) {
	s.state = state
	s.stopTimerLocked()
	s.closeDone()
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) emit(event Event) {
	s.observer(event)
}

func isConfirmed(status string) bool {
	return status == string(types.OrderStatusCompleted) || status == string(types.OrderStatusProcessing)
}

func isFailed(status string) bool {
	return status == string(types.OrderStatusFailed) || status == string(types.OrderStatusCancelled)
}
