package config

import (
	"strings"

	"github.com/spf13/viper"
)

// NotificationConfiguration defines the email, chat and event stream settings
type NotificationConfiguration struct {
	EmailDomain      string
	EmailAPIKey      string
	EmailFromAddress string
	EmailProvider    string
	AdminEmail       string
	KafkaBrokers     []string
	KafkaTopic       string
}

// NotificationConfig sets the notification configurations
func NotificationConfig() (config *NotificationConfiguration) {
	viper.SetDefault("EMAIL_DOMAIN", "api.sendgrid.com")
	viper.SetDefault("EMAIL_FROM_ADDRESS", "OCPay <no-reply@oneclickdz.com>")
	viper.SetDefault("EMAIL_PROVIDER", "sendgrid")
	viper.SetDefault("KAFKA_TOPIC", "ocpay.payments")

	var brokers []string
	for _, b := range strings.Split(viper.GetString("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}

	return &NotificationConfiguration{
		EmailDomain:      viper.GetString("EMAIL_DOMAIN"),
		EmailAPIKey:      viper.GetString("EMAIL_API_KEY"),
		EmailFromAddress: viper.GetString("EMAIL_FROM_ADDRESS"),
		EmailProvider:    viper.GetString("EMAIL_PROVIDER"),
		AdminEmail:       viper.GetString("ADMIN_EMAIL"),
		KafkaBrokers:     brokers,
		KafkaTopic:       viper.GetString("KAFKA_TOPIC"),
	}
}
