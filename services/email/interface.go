package email

import (
	"context"

	"github.com/oneclickdz/ocpay-reconciler/types"
)

// EmailServiceInterface provides the interface for the email service
type EmailServiceInterface interface {
	SendEmail(ctx context.Context, payload types.SendEmailPayload) (types.SendEmailResponse, error)
	SendPaymentConfirmedEmail(ctx context.Context, event types.PaymentEvent) (types.SendEmailResponse, error)
	SendPaymentFailedEmail(ctx context.Context, event types.PaymentEvent) (types.SendEmailResponse, error)
}
