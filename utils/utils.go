package utils

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/shopspring/decimal"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// APIResponse writes the standard response envelope
func APIResponse(ctx *gin.Context, code int, status string, message string, data interface{}) {
	ctx.JSON(code, types.Response{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

// StorefrontResponse writes the envelope the storefront poller consumes
func StorefrontResponse(ctx *gin.Context, code int, success bool, data interface{}) {
	ctx.JSON(code, types.StorefrontResponse{
		Success: success,
		Data:    data,
	})
}

// Retry calls fn up to attempts times, sleeping between failures. It stops early when ctx is done.
func Retry(ctx context.Context, attempts int, sleep time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}
	}
	return err
}

// ContainsString returns true if the slice contains the item
func ContainsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// SanitizeText strips markup and control characters and truncates to maxLen runes
func SanitizeText(s string, maxLen int) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")

	if maxLen > 0 {
		runes := []rune(s)
		if len(runes) > maxLen {
			s = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return s
}

// ToWholeUnits rounds an amount to whole currency units
func ToWholeUnits(amount decimal.Decimal) int64 {
	return amount.Round(0).IntPart()
}

// IsValidHttpUrl checks that a URL is absolute and uses http or https
func IsValidHttpUrl(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// AppendQuery adds query parameters to a URL, keeping the ones it already has
func AppendQuery(rawURL string, params map[string]string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
