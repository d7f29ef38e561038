package ocpay

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingAPIKey is returned when no API key is configured for the active mode
var ErrMissingAPIKey = errors.New("ocpay: API key is not configured")

// ErrorKind classifies provider failures
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindAPIKeyInvalid   ErrorKind = "api_key_invalid"
	KindOrderNotFound   ErrorKind = "order_not_found"
	KindRateLimit       ErrorKind = "api_rate_limit"
	KindConnection      ErrorKind = "api_connection_error"
	KindInvalidResponse ErrorKind = "api_invalid_response"
)

var userMessages = map[ErrorKind]string{
	KindValidation:      "The payment request was rejected. Please check your order details and try again.",
	KindAPIKeyInvalid:   "Payment gateway authentication failed. Please contact the store administrator.",
	KindOrderNotFound:   "The payment could not be found.",
	KindRateLimit:       "Too many payment requests. Please wait a moment and try again.",
	KindConnection:      "Unable to reach the payment gateway. Please try again later.",
	KindInvalidResponse: "The payment gateway returned an unexpected response. Please try again later.",
}

// APIError is a normalized provider failure
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("ocpay %s (HTTP %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("ocpay %s: %s", e.Kind, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// UserMessage returns the message safe to show to a customer
func (e *APIError) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return userMessages[KindInvalidResponse]
}

// InvalidPayload reports a 2xx answer whose body did not carry the expected fields
func (e *APIError) InvalidPayload() bool {
	return e.Kind == KindInvalidResponse && e.StatusCode >= 200 && e.StatusCode < 300
}

// KindForStatus maps an HTTP status code onto an error kind
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusBadRequest:
		return KindValidation
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAPIKeyInvalid
	case code == http.StatusNotFound:
		return KindOrderNotFound
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code >= 500:
		return KindConnection
	default:
		return KindInvalidResponse
	}
}

// UserMessage returns the customer-facing message for any error from this package
func UserMessage(err error) string {
	if errors.Is(err, ErrMissingAPIKey) {
		return "OCPay is not configured. Please contact the store administrator."
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	return "An unexpected error occurred. Please try again."
}
