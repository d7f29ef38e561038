package config

import (
	"sync"
	"time"

	"github.com/spf13/viper"
)

// AuthConfiguration defines the authentication & authorization settings
type AuthConfiguration struct {
	Secret           string
	NonceLifespan    time.Duration
	AdminAPIKey      string
	StorefrontAPIKey string
}

var authDefaultsOnce sync.Once

// initAuthDefaults sets the default values once to avoid concurrent map writes
func initAuthDefaults() {
	authDefaultsOnce.Do(func() {
		viper.SetDefault("NONCE_LIFESPAN", 1440) // 24 hours
	})
}

// AuthConfig returns the authentication & authorization configurations
func AuthConfig() *AuthConfiguration {
	initAuthDefaults()

	return &AuthConfiguration{
		Secret:           viper.GetString("SECRET"),
		NonceLifespan:    time.Duration(viper.GetInt("NONCE_LIFESPAN")) * time.Minute,
		AdminAPIKey:      viper.GetString("ADMIN_API_KEY"),
		StorefrontAPIKey: viper.GetString("STOREFRONT_API_KEY"),
	}
}
