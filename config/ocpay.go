package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ModeSandbox selects the sandbox API key
	ModeSandbox = "sandbox"
	// ModeLive selects the live API key
	ModeLive = "live"
)

// OCPayConfiguration defines the payment provider settings
type OCPayConfiguration struct {
	Mode           string
	SandboxAPIKey  string
	LiveAPIKey     string
	BaseURL        string
	GatewayID      string
	FeeMode        string
	SuccessStatus  string
	ReturnURL      string
	RequestTimeout time.Duration
}

// OCPayConfig retrieves the OCPay provider configuration
func OCPayConfig() *OCPayConfiguration {
	viper.SetDefault("OCPAY_MODE", ModeSandbox)
	viper.SetDefault("OCPAY_BASE_URL", "https://api.oneclickdz.com/v3")
	viper.SetDefault("OCPAY_GATEWAY_ID", "ocpay")
	viper.SetDefault("OCPAY_FEE_MODE", "NO_FEE")
	viper.SetDefault("OCPAY_SUCCESS_STATUS", "processing")
	viper.SetDefault("OCPAY_REQUEST_TIMEOUT", 30)

	return &OCPayConfiguration{
		Mode:           strings.ToLower(viper.GetString("OCPAY_MODE")),
		SandboxAPIKey:  viper.GetString("OCPAY_SANDBOX_API_KEY"),
		LiveAPIKey:     viper.GetString("OCPAY_LIVE_API_KEY"),
		BaseURL:        strings.TrimRight(viper.GetString("OCPAY_BASE_URL"), "/"),
		GatewayID:      viper.GetString("OCPAY_GATEWAY_ID"),
		FeeMode:        strings.ToUpper(viper.GetString("OCPAY_FEE_MODE")),
		SuccessStatus:  strings.ToLower(viper.GetString("OCPAY_SUCCESS_STATUS")),
		ReturnURL:      viper.GetString("OCPAY_RETURN_URL"),
		RequestTimeout: time.Duration(viper.GetInt("OCPAY_REQUEST_TIMEOUT")) * time.Second,
	}
}

// APIKey returns the key for the active mode
func (c *OCPayConfiguration) APIKey() string {
	if c.Mode == ModeLive {
		return c.LiveAPIKey
	}
	return c.SandboxAPIKey
}

// SuccessOrderStatus returns the configured status for confirmed payments,
// falling back to processing for anything other than processing or completed.
func (c *OCPayConfiguration) SuccessOrderStatus() string {
	switch c.SuccessStatus {
	case "processing", "completed":
		return c.SuccessStatus
	default:
		return "processing"
	}
}
