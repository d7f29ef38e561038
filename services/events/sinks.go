package events

import (
	"context"
	"errors"

	"github.com/oneclickdz/ocpay-reconciler/services/email"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

// EmailSink mails the customer on completion and the administrator on failure
type EmailSink struct {
	service email.EmailServiceInterface
}

func NewEmailSink(service email.EmailServiceInterface) *EmailSink {
	return &EmailSink{service: service}
}

func (e *EmailSink) Name() string { return "email" }

func (e *EmailSink) Handle(ctx context.Context, event types.PaymentEvent) error {
	var err error
	switch event.Type {
	case types.EventPaymentCompleted:
		_, err = e.service.SendPaymentConfirmedEmail(ctx, event)
	case types.EventPaymentFailed:
		_, err = e.service.SendPaymentFailedEmail(ctx, event)
	default:
		return nil
	}

	if errors.Is(err, email.ErrNoRecipient) {
		logger.WithFields(logger.Fields{
			"OrderID": event.OrderID,
			"Event":   string(event.Type),
		}).Debugf("Events.EmailNoRecipient")
		return nil
	}
	return err
}

// FailureAlerter sends an admin chat alert for a failed payment
type FailureAlerter interface {
	SendPaymentFailedAlert(ctx context.Context, event types.PaymentEvent) error
}

// SlackSink forwards failed payments to the admin channel
type SlackSink struct {
	alerter FailureAlerter
}

func NewSlackSink(alerter FailureAlerter) *SlackSink {
	return &SlackSink{alerter: alerter}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Handle(ctx context.Context, event types.PaymentEvent) error {
	if event.Type != types.EventPaymentFailed {
		return nil
	}
	return s.alerter.SendPaymentFailedAlert(ctx, event)
}
