package poller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testServiceURL = "https://pay.shop.example.com"

func TestHTTPChecker(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	ctx := context.Background()
	checker := NewHTTPChecker(testServiceURL+"/", "nonce-token")

	t.Run("success envelope", func(t *testing.T) {
		httpmock.RegisterResponder("POST", testServiceURL+"/v1/orders/1001/check",
			func(r *http.Request) (*http.Response, error) {
				var payload types.StatusCheckPayload
				_ = json.NewDecoder(r.Body).Decode(&payload)
				assert.Equal(t, "nonce-token", payload.Nonce)
				return httpmock.NewJsonResponse(200, map[string]interface{}{
					"success": true,
					"data":    map[string]interface{}{"updated": true, "status": "processing"},
				})
			})

		data, err := checker.Check(ctx, "1001")
		require.NoError(t, err)
		assert.True(t, data.Updated)
		assert.Equal(t, "processing", data.Status)
	})

	t.Run("rejected envelope", func(t *testing.T) {
		httpmock.RegisterResponder("POST", testServiceURL+"/v1/orders/1002/check",
			httpmock.NewJsonResponderOrPanic(403, map[string]interface{}{
				"success": false,
				"data":    map[string]interface{}{"message": "Invalid request."},
			}))

		_, err := checker.Check(ctx, "1002")
		assert.True(t, errors.Is(err, ErrCheckRejected))
		assert.Contains(t, err.Error(), "Invalid request.")
	})

	t.Run("transport error", func(t *testing.T) {
		httpmock.RegisterResponder("POST", testServiceURL+"/v1/orders/1003/check",
			httpmock.NewErrorResponder(errors.New("connection refused")))

		_, err := checker.Check(ctx, "1003")
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrCheckRejected))
	})

	t.Run("non-json body", func(t *testing.T) {
		httpmock.RegisterResponder("POST", testServiceURL+"/v1/orders/1004/check",
			httpmock.NewStringResponder(502, "<html>Bad Gateway</html>"))

		_, err := checker.Check(ctx, "1004")
		assert.Error(t, err)
	})
}
