package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/services/reconcile"
	"github.com/oneclickdz/ocpay-reconciler/types"
	fastshot "github.com/opus-domini/fast-shot"
)

// ErrCheckRejected is returned when the poll endpoint answers with success false
var ErrCheckRejected = errors.New("status check rejected")

// HTTPChecker calls the poll endpoint of a running service
type HTTPChecker struct {
	baseURL string
	nonce   string
	timeout time.Duration
}

// NewHTTPChecker creates a checker for the service at baseURL using the order's poll nonce
func NewHTTPChecker(baseURL, nonce string) *HTTPChecker {
	return &HTTPChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		nonce:   nonce,
		timeout: 10 * time.Second,
	}
}

// Check performs one poll request
func (c *HTTPChecker) Check(ctx context.Context, orderID string) (types.StatusCheckData, error) {
	res, err := fastshot.NewClient(c.baseURL).
		Config().SetTimeout(c.timeout).
		Header().Add("Content-Type", "application/json").
		Build().POST(fmt.Sprintf("/v1/orders/%s/check", url.PathEscape(orderID))).
		Context().Set(ctx).
		Body().AsJSON(types.StatusCheckPayload{Nonce: c.nonce}).
		Send()
	if err != nil {
		return types.StatusCheckData{}, fmt.Errorf("poll request: %w", err)
	}
	if res.RawResponse == nil {
		return types.StatusCheckData{}, errors.New("poll request: empty response")
	}
	defer res.RawResponse.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(res.RawResponse.Body).Decode(&envelope); err != nil {
		return types.StatusCheckData{}, fmt.Errorf("poll response (HTTP %d): %w", res.RawResponse.StatusCode, err)
	}

	if !envelope.Success {
		var data types.MessageData
		_ = json.Unmarshal(envelope.Data, &data)
		return types.StatusCheckData{}, fmt.Errorf("%w: %s", ErrCheckRejected, data.Message)
	}

	var data types.StatusCheckData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return types.StatusCheckData{}, fmt.Errorf("poll response data: %w", err)
	}
	return data, nil
}

// NewEngineChecker checks orders in process, without going through HTTP
func NewEngineChecker(engine reconcile.Reconciler, store types.OrderStore, gatewayID string) Checker {
	return reconcile.NewStatusService(engine, store, gatewayID)
}
