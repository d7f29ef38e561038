package config

import (
	"github.com/spf13/viper"
)

// ServerConfiguration type defines the server configurations
type ServerConfiguration struct {
	Debug                    bool
	Host                     string
	Port                     string
	Timezone                 string
	Environment              string
	SentryDSN                string
	SlackWebhookURL          string
	StorefrontURL            string
	RateLimitUnauthenticated int
	RateLimitAuthenticated   int
}

// ServerConfig sets the server configuration
func ServerConfig() *ServerConfiguration {
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8000")
	viper.SetDefault("SERVER_TIMEZONE", "Africa/Algiers")
	viper.SetDefault("ENVIRONMENT", "local")
	viper.SetDefault("RATE_LIMIT_UNAUTHENTICATED", 20)
	viper.SetDefault("RATE_LIMIT_AUTHENTICATED", 100)

	return &ServerConfiguration{
		Debug:                    viper.GetBool("DEBUG"),
		Host:                     viper.GetString("SERVER_HOST"),
		Port:                     viper.GetString("SERVER_PORT"),
		Timezone:                 viper.GetString("SERVER_TIMEZONE"),
		Environment:              viper.GetString("ENVIRONMENT"),
		SentryDSN:                viper.GetString("SENTRY_DSN"),
		SlackWebhookURL:          viper.GetString("SLACK_WEBHOOK_URL"),
		StorefrontURL:            viper.GetString("STOREFRONT_URL"),
		RateLimitUnauthenticated: viper.GetInt("RATE_LIMIT_UNAUTHENTICATED"),
		RateLimitAuthenticated:   viper.GetInt("RATE_LIMIT_AUTHENTICATED"),
	}
}
