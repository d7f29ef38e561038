package ocpay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	fastshot "github.com/opus-domini/fast-shot"
	"github.com/xeipuuv/gojsonschema"
)

var paymentRefPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_]{10,50}$`)

// ValidPaymentRef reports whether ref looks like a reference issued by OCPay
func ValidPaymentRef(ref string) bool {
	return paymentRefPattern.MatchString(ref)
}

// Client talks to the OCPay REST API
type Client struct {
	baseURL  string
	apiKey   string
	mode     string
	timeout  time.Duration
	validate *validator.Validate
}

// NewClient creates a client for the active mode. It fails when that mode has no API key.
func NewClient(conf *config.OCPayConfiguration) (*Client, error) {
	apiKey := conf.APIKey()
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	timeout := conf.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	validate := validator.New()
	_ = validate.RegisterValidation("paymentref", func(fl validator.FieldLevel) bool {
		return ValidPaymentRef(fl.Field().String())
	})

	return &Client{
		baseURL:  conf.BaseURL,
		apiKey:   apiKey,
		mode:     conf.Mode,
		timeout:  timeout,
		validate: validate,
	}, nil
}

// Mode returns sandbox or live
func (c *Client) Mode() string {
	return c.mode
}

// CreateLink creates a hosted payment link
func (c *Client) CreateLink(ctx context.Context, req types.CreateLinkRequest) (*types.CreateLinkResult, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, &APIError{Kind: KindValidation, Message: err.Error(), Err: err}
	}

	var envelope struct {
		Data types.CreateLinkResult `json:"data"`
	}
	if err := c.send(ctx, http.MethodPost, "/ocpay/createLink", req, createLinkSchema, &envelope); err != nil {
		return nil, err
	}

	if err := c.validate.Var(envelope.Data.PaymentRef, "paymentref"); err != nil {
		return nil, &APIError{
			Kind:       KindInvalidResponse,
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("malformed payment reference %q", envelope.Data.PaymentRef),
		}
	}

	return &envelope.Data, nil
}

// CheckPayment fetches the current status of a payment
func (c *Client) CheckPayment(ctx context.Context, ref string) (*types.PaymentCheckResult, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, &APIError{Kind: KindValidation, Message: "payment reference is required"}
	}

	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	path := "/ocpay/checkPayment/" + url.PathEscape(ref)
	if err := c.send(ctx, http.MethodGet, path, nil, checkPaymentSchema, &envelope); err != nil {
		return nil, err
	}

	status, _ := envelope.Data["status"].(string)
	return &types.PaymentCheckResult{
		Reference: ref,
		Status:    types.PaymentStatus(strings.ToUpper(strings.TrimSpace(status))),
		Data:      envelope.Data,
	}, nil
}

// TestConnection probes the API with a dummy reference.
// A 404 proves the key was accepted; 401/403 prove it was not.
func (c *Client) TestConnection(ctx context.Context) types.ConnectionTestResult {
	started := time.Now()
	_, err := c.CheckPayment(ctx, "test-ref")
	result := types.ConnectionTestResult{
		Mode:      c.mode,
		LatencyMs: time.Since(started).Milliseconds(),
	}

	apiErr, _ := err.(*APIError)
	switch {
	case err == nil:
		result.Reachable, result.KeyValid = true, true
		result.StatusCode = http.StatusOK
		result.Message = "Connection successful"
	case apiErr == nil:
		result.Message = err.Error()
	case apiErr.Kind == KindOrderNotFound:
		result.Reachable, result.KeyValid = true, true
		result.StatusCode = apiErr.StatusCode
		result.Message = "Connection successful"
	case apiErr.Kind == KindAPIKeyInvalid:
		result.Reachable = true
		result.StatusCode = apiErr.StatusCode
		result.Message = "API key rejected by OCPay"
	case apiErr.Kind == KindConnection && apiErr.StatusCode == 0:
		result.Message = apiErr.Error()
	default:
		result.Reachable = true
		result.StatusCode = apiErr.StatusCode
		result.Message = apiErr.Error()
	}
	return result
}

// send performs the request and decodes a schema-valid 2xx body into out
func (c *Client) send(ctx context.Context, method, path string, body interface{}, schema gojsonschema.JSONLoader, out interface{}) error {
	client := fastshot.NewClient(c.baseURL).
		Config().SetTimeout(c.timeout).
		Header().AddAll(map[string]string{
		"Accept":         "application/json",
		"Content-Type":   "application/json",
		"X-Access-Token": c.apiKey,
	}).
		Build()

	started := time.Now()
	var res fastshot.Response
	var err error
	switch method {
	case http.MethodPost:
		res, err = client.POST(path).Context().Set(ctx).Body().AsJSON(body).Send()
	default:
		res, err = client.GET(path).Context().Set(ctx).Send()
	}
	observeRequest(path, started, res.RawResponse, err)
	if err != nil {
		return &APIError{Kind: KindConnection, Message: err.Error(), Err: err}
	}
	if res.RawResponse == nil {
		return &APIError{Kind: KindConnection, Message: "empty response"}
	}
	defer res.RawResponse.Body.Close()

	raw, err := io.ReadAll(res.RawResponse.Body)
	if err != nil {
		return &APIError{Kind: KindConnection, StatusCode: res.RawResponse.StatusCode, Message: err.Error(), Err: err}
	}

	code := res.RawResponse.StatusCode
	if code < 200 || code >= 300 {
		apiErr := &APIError{Kind: KindForStatus(code), StatusCode: code, Message: providerMessage(raw)}
		logger.WithFields(logger.Fields{
			"Path":       path,
			"StatusCode": code,
			"Kind":       string(apiErr.Kind),
			"Message":    apiErr.Message,
		}).Warnf("OCPay.Request: non-2xx response")
		return apiErr
	}

	if err := validateEnvelope(schema, raw); err != nil {
		msg := providerMessage(raw)
		if msg == "" {
			msg = err.Error()
		}
		return &APIError{Kind: KindInvalidResponse, StatusCode: code, Message: msg, Err: err}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Kind: KindInvalidResponse, StatusCode: code, Message: err.Error(), Err: err}
	}
	return nil
}

// providerMessage extracts the error text of a failure body, which may be
// {"error": "..."}, {"message": "..."} or {"error": {"message": "..."}}
func providerMessage(raw []byte) string {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		text := strings.TrimSpace(string(raw))
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}

	for _, key := range []string{"message", "error"} {
		switch v := body[key].(type) {
		case string:
			return v
		case map[string]interface{}:
			if msg, ok := v["message"].(string); ok {
				return msg
			}
		}
	}
	return ""
}
