package email

import (
	"context"
	"fmt"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridProvider implements EmailProvider for SendGrid
type SendGridProvider struct {
	config *config.NotificationConfiguration
}

// NewSendGridProvider creates a new SendGrid provider
func NewSendGridProvider(config *config.NotificationConfiguration) *SendGridProvider {
	return &SendGridProvider{
		config: config,
	}
}

// SendEmail sends an email via SendGrid
func (s *SendGridProvider) SendEmail(ctx context.Context, payload types.SendEmailPayload) (types.SendEmailResponse, error) {
	m := mail.NewV3Mail()
	m.Subject = payload.Subject
	m.SetFrom(mail.NewEmail("OCPay", payload.FromAddress))
	m.AddContent(mail.NewContent("text/plain", payload.Body))
	if payload.HTMLBody != "" {
		m.AddContent(mail.NewContent("text/html", payload.HTMLBody))
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", payload.ToAddress))
	m.AddPersonalizations(p)

	request := sendgrid.GetRequest(s.config.EmailAPIKey, "/v3/mail/send", fmt.Sprintf("https://%s", s.config.EmailDomain))
	request.Method = "POST"
	request.Body = mail.GetRequestBody(m)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("status %d: %s", response.StatusCode, response.Body)
	}
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error": fmt.Sprintf("%v", err),
			"To":    payload.ToAddress,
		}).Errorf("SendGrid.SendEmail")
		return types.SendEmailResponse{}, fmt.Errorf("sendgrid send error: %w", err)
	}

	var messageID string
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		messageID = ids[0]
	}

	return types.SendEmailResponse{
		Id:       messageID,
		Response: response.Body,
	}, nil
}

// GetName returns the provider name
func (s *SendGridProvider) GetName() string {
	return "sendgrid"
}
