package email

import (
	"context"
	"fmt"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/types"
)

// EmailProvider defines the interface for email providers
type EmailProvider interface {
	SendEmail(ctx context.Context, payload types.SendEmailPayload) (types.SendEmailResponse, error)
	GetName() string
}

// ProviderFactory creates email providers based on configuration
type ProviderFactory struct {
	config *config.NotificationConfiguration
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(config *config.NotificationConfiguration) *ProviderFactory {
	return &ProviderFactory{config: config}
}

// CreateProvider creates an email provider based on the provider name
func (pf *ProviderFactory) CreateProvider(providerName string) (EmailProvider, error) {
	switch providerName {
	case "mailgun":
		provider, err := NewMailgunProvider(pf.config)
		if err != nil {
			return nil, err
		}
		return provider, nil
	case "sendgrid":
		return NewSendGridProvider(pf.config), nil
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", providerName)
	}
}

// GetDefaultProvider returns the provider named in the configuration, sendgrid when unset
func (pf *ProviderFactory) GetDefaultProvider() (EmailProvider, error) {
	providerName := pf.config.EmailProvider
	if providerName == "" {
		providerName = "sendgrid"
	}
	return pf.CreateProvider(providerName)
}
