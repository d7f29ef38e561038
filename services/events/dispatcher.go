package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

const defaultSinkTimeout = 15 * time.Second

// ErrDispatcherClosed is returned when publishing after Close
var ErrDispatcherClosed = errors.New("event dispatcher is closed")

// Sink delivers payment events to one downstream system
type Sink interface {
	Name() string
	Handle(ctx context.Context, event types.PaymentEvent) error
}

// Dispatcher fans a committed payment event out to every sink.
// Publish hands the event to a background delivery and returns at once.
// Sinks run concurrently and detached from the caller's cancellation.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given sinks
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, timeout: defaultSinkTimeout}
}

// SetTimeout bounds how long each sink may take
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// Sinks returns the names of the configured sinks
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Publish implements types.EventPublisher. Delivery errors are logged, not returned.
func (d *Dispatcher) Publish(ctx context.Context, event types.PaymentEvent) error {
	if len(d.sinks) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	ctx = context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		_ = d.Deliver(ctx, event)
	}()
	return nil
}

// Deliver sends the event to every sink and waits for all of them
func (d *Dispatcher) Deliver(ctx context.Context, event types.PaymentEvent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, sink := range d.sinks {
		wg.Add(1)
		go func(sink Sink) {
			defer wg.Done()

			err := deliver(ctx, sink, event)
			observeDelivery(sink.Name(), err)
			if err == nil {
				return
			}

			logger.WithFields(logger.Fields{
				"Error":   fmt.Sprintf("%v", err),
				"Sink":    sink.Name(),
				"OrderID": event.OrderID,
				"Event":   string(event.Type),
			}).Errorf("Events.Deliver")

			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			mu.Unlock()
		}(sink)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func deliver(ctx context.Context, sink Sink, event types.PaymentEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sink.Handle(ctx, event)
}

// Wait blocks until every published event has been delivered
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close stops accepting events, drains pending deliveries and closes every sink that holds resources
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.inflight.Wait()

	var errs []error
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
