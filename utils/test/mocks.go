package test

import (
	"context"
	"sync"

	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/stretchr/testify/mock"
)

// MockProvider mocks the OCPay client
type MockProvider struct {
	mock.Mock
}

// CheckPayment mocks the CheckPayment method
func (m *MockProvider) CheckPayment(ctx context.Context, ref string) (*types.PaymentCheckResult, error) {
	args := m.Called(ctx, ref)
	result, _ := args.Get(0).(*types.PaymentCheckResult)
	return result, args.Error(1)
}

// CreateLink mocks the CreateLink method
func (m *MockProvider) CreateLink(ctx context.Context, req types.CreateLinkRequest) (*types.CreateLinkResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*types.CreateLinkResult)
	return result, args.Error(1)
}

// CheckResult builds a provider result with the given status
func CheckResult(ref string, status types.PaymentStatus) *types.PaymentCheckResult {
	return &types.PaymentCheckResult{
		Reference: ref,
		Status:    status,
		Data:      map[string]interface{}{"status": string(status), "paymentRef": ref},
	}
}

// RecordingPublisher collects published events
type RecordingPublisher struct {
	mu     sync.Mutex
	events []types.PaymentEvent
	Err    error
}

// Publish records the event
func (p *RecordingPublisher) Publish(ctx context.Context, event types.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

// Events returns a copy of the recorded events
func (p *RecordingPublisher) Events() []types.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.PaymentEvent(nil), p.events...)
}
