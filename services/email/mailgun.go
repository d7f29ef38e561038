package email

import (
	"context"
	"errors"
	"fmt"

	mailgunv3 "github.com/mailgun/mailgun-go/v3"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

// ErrMailgunNotConfigured is returned when the mailgun domain or key is missing
var ErrMailgunNotConfigured = errors.New("mailgun provider requires EmailDomain and EmailAPIKey")

// MailgunProvider implements EmailProvider for Mailgun
type MailgunProvider struct {
	config *config.NotificationConfiguration
	client mailgunv3.Mailgun
}

// NewMailgunProvider creates a new Mailgun provider
func NewMailgunProvider(config *config.NotificationConfiguration) (*MailgunProvider, error) {
	if config == nil || config.EmailDomain == "" || config.EmailAPIKey == "" {
		return nil, ErrMailgunNotConfigured
	}
	return &MailgunProvider{
		config: config,
		client: mailgunv3.NewMailgun(config.EmailDomain, config.EmailAPIKey),
	}, nil
}

// SendEmail sends an email via Mailgun
func (m *MailgunProvider) SendEmail(ctx context.Context, payload types.SendEmailPayload) (types.SendEmailResponse, error) {
	message := m.client.NewMessage(
		payload.FromAddress,
		payload.Subject,
		payload.Body,
		payload.ToAddress,
	)
	if payload.HTMLBody != "" {
		message.SetHtml(payload.HTMLBody)
	}

	response, id, err := m.client.Send(ctx, message)
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error": fmt.Sprintf("%v", err),
			"To":    payload.ToAddress,
		}).Errorf("Mailgun.SendEmail")
		return types.SendEmailResponse{}, fmt.Errorf("mailgun send error: %w", err)
	}

	return types.SendEmailResponse{
		Id:       id,
		Response: response,
	}, nil
}

// GetName returns the provider name
func (m *MailgunProvider) GetName() string {
	return "mailgun"
}
