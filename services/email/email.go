package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

// ErrNoRecipient is returned when an event carries no address to write to
var ErrNoRecipient = errors.New("no email recipient")

// EmailService provides functionality for sending emails with provider abstraction and fallback support
type EmailService struct {
	primaryProvider  EmailProvider
	fallbackProvider EmailProvider
	notificationConf *config.NotificationConfiguration
}

// NewEmailService creates a new EmailService. The fallback is whichever of sendgrid/mailgun
// is not primary, and is left out when it cannot be configured.
func NewEmailService(conf *config.NotificationConfiguration) (*EmailService, error) {
	factory := NewProviderFactory(conf)

	primaryProvider, err := factory.GetDefaultProvider()
	if err != nil {
		return nil, fmt.Errorf("primary email provider: %w", err)
	}

	fallbackName := "sendgrid"
	if primaryProvider.GetName() == "sendgrid" {
		fallbackName = "mailgun"
	}
	fallbackProvider, err := factory.CreateProvider(fallbackName)
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error":    fmt.Sprintf("%v", err),
			"Provider": fallbackName,
		}).Warnf("Email.FallbackUnavailable")
		fallbackProvider = nil
	}

	return NewEmailServiceWithProviders(conf, primaryProvider, fallbackProvider), nil
}

// NewEmailServiceWithProviders wires explicit providers; fallback may be nil
func NewEmailServiceWithProviders(conf *config.NotificationConfiguration, primary, fallback EmailProvider) *EmailService {
	return &EmailService{
		primaryProvider:  primary,
		fallbackProvider: fallback,
		notificationConf: conf,
	}
}

// SendEmail sends an email with fallback support
func (e *EmailService) SendEmail(ctx context.Context, payload types.SendEmailPayload) (types.SendEmailResponse, error) {
	if payload.ToAddress == "" {
		return types.SendEmailResponse{}, ErrNoRecipient
	}
	if payload.FromAddress == "" {
		payload.FromAddress = e.notificationConf.EmailFromAddress
	}

	response, err := e.primaryProvider.SendEmail(ctx, payload)
	if err == nil {
		return response, nil
	}

	logger.WithFields(logger.Fields{
		"Provider": e.primaryProvider.GetName(),
		"Error":    fmt.Sprintf("%v", err),
	}).Warnf("Primary email provider failed, trying fallback")

	if e.fallbackProvider == nil {
		return types.SendEmailResponse{}, fmt.Errorf("no fallback provider available: %w", err)
	}

	response, err = e.fallbackProvider.SendEmail(ctx, payload)
	if err != nil {
		logger.WithFields(logger.Fields{
			"Provider": e.fallbackProvider.GetName(),
			"Error":    fmt.Sprintf("%v", err),
		}).Errorf("Fallback email provider also failed")
		return types.SendEmailResponse{}, fmt.Errorf("all email providers failed: %w", err)
	}

	logger.WithFields(logger.Fields{
		"Provider": e.fallbackProvider.GetName(),
	}).Infof("Email sent successfully via fallback provider")

	return response, nil
}

// SendPaymentConfirmedEmail tells the customer their payment went through
func (e *EmailService) SendPaymentConfirmedEmail(ctx context.Context, event types.PaymentEvent) (types.SendEmailResponse, error) {
	name := event.BillingName
	if name == "" {
		name = "there"
	}

	return e.SendEmail(ctx, types.SendEmailPayload{
		ToAddress: event.BillingEmail,
		Subject:   fmt.Sprintf("Payment received for order #%s", event.OrderID),
		Body: fmt.Sprintf(
			"Hi %s,\n\nWe received your payment of %s %s for order #%s.\nPayment reference: %s\n\nThank you for your purchase.",
			name, event.Total.StringFixed(2), event.Currency, event.OrderID, event.PaymentRef,
		),
	})
}

// SendPaymentFailedEmail alerts the store administrator that an order was put on hold
func (e *EmailService) SendPaymentFailedEmail(ctx context.Context, event types.PaymentEvent) (types.SendEmailResponse, error) {
	return e.SendEmail(ctx, types.SendEmailPayload{
		ToAddress: e.notificationConf.AdminEmail,
		Subject:   fmt.Sprintf("OCPay payment failed for order #%s", event.OrderID),
		Body: fmt.Sprintf(
			"OCPay reported a failed payment for order #%s (%s %s).\nPayment reference: %s\nCustomer: %s <%s>\n\nThe order is on hold. Please contact the customer for an alternative payment method.",
			event.OrderID, event.Total.StringFixed(2), event.Currency, event.PaymentRef, event.BillingName, event.BillingEmail,
		),
	})
}
