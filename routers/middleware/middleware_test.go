package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/test"
	"github.com/oneclickdz/ocpay-reconciler/utils/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeStorefront(t *testing.T, body []byte) (bool, string) {
	var res struct {
		Success bool              `json:"success"`
		Data    types.MessageData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	return res.Success, res.Data.Message
}

func TestPollNonceMiddleware(t *testing.T) {
	router := gin.New()
	router.POST("/v1/orders/:order_id/check", PollNonceMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"customer": c.GetString(CustomerIDKey)})
	})

	nonce, err := token.GeneratePollNonce(secret, "1042", "customer-7", time.Hour)
	require.NoError(t, err)

	t.Run("nonce in header", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/v1/orders/1042/check", nil, map[string]string{NonceHeader: nonce}, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.Code)
		assert.JSONEq(t, `{"customer":"customer-7"}`, res.Body.String())
	})

	t.Run("nonce in body", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/v1/orders/1042/check", types.StatusCheckPayload{Nonce: nonce}, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.Code)
	})

	t.Run("nonce for another order", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/v1/orders/1043/check", nil, map[string]string{NonceHeader: nonce}, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, res.Code)

		success, message := decodeStorefront(t, res.Body.Bytes())
		assert.False(t, success)
		assert.Equal(t, "Invalid request.", message)
	})

	t.Run("missing nonce", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/v1/orders/1042/check", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, res.Code)
	})
}

func TestStatusCheckLimiter(t *testing.T) {
	mr, client := test.SetupTestRedis(t)

	router := gin.New()
	router.POST("/check/:customer", func(c *gin.Context) {
		if customer := c.Param("customer"); customer != "guest" {
			c.Set(CustomerIDKey, customer)
		}
		c.Next()
	}, StatusCheckLimiter(client, 3), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	for i := 0; i < 3; i++ {
		res, err := test.PerformRequest(t, "POST", "/check/customer-1", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.Code, "request %d", i+1)
	}

	t.Run("limit reached", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/check/customer-1", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, res.Code)
		assert.NotEmpty(t, res.Header().Get("Retry-After"))

		success, message := decodeStorefront(t, res.Body.Bytes())
		assert.False(t, success)
		assert.Contains(t, message, "Too many status check requests")
	})

	t.Run("customers are counted separately", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/check/customer-2", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.Code)
	})

	t.Run("guests are keyed by ip", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/check/guest", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.Code)

		var ipKey bool
		for _, key := range mr.Keys() {
			if strings.HasPrefix(key, "ocpay_status_check_ip_") {
				ipKey = true
			}
		}
		assert.True(t, ipKey, "keys: %v", mr.Keys())
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	router := gin.New()
	router.GET("/admin", AdminAuthMiddleware("admin-key"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"valid", "Bearer admin-key", http.StatusNoContent},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "admin-key", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			res, err := test.PerformRequest(t, "GET", "/admin", nil, headers, router)
			require.NoError(t, err)
			assert.Equal(t, tc.code, res.Code)
		})
	}

	t.Run("empty configured key rejects everything", func(t *testing.T) {
		r := gin.New()
		r.GET("/admin", AdminAuthMiddleware(""), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		res, err := test.PerformRequest(t, "GET", "/admin", nil, map[string]string{"Authorization": "Bearer "}, r)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})
}

func TestStorefrontAuthMiddleware(t *testing.T) {
	router := gin.New()
	router.POST("/orders/:order_id/thank-you", StorefrontAuthMiddleware("storefront-key"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	t.Run("anonymous caller is rejected", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/orders/1042/thank-you", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
		assert.Contains(t, res.Body.String(), "Invalid or missing storefront token")
	})

	t.Run("admin key is not a storefront key", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/orders/1042/thank-you", nil,
			map[string]string{"Authorization": "Bearer admin-key"}, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, res.Code)
	})

	t.Run("storefront key is accepted", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/orders/1042/thank-you", nil,
			map[string]string{"Authorization": "Bearer storefront-key"}, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, res.Code)
	})
}

func TestPageViewLimiter(t *testing.T) {
	mr, client := test.SetupTestRedis(t)

	router := gin.New()
	limiter := PageViewLimiter(client, 2)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	router.POST("/orders/:order_id/view", limiter, ok)
	router.POST("/customers/:customer_id/orders/check", limiter, ok)

	for i := 0; i < 2; i++ {
		res, err := test.PerformRequest(t, "POST", "/orders/1042/view", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, res.Code, "request %d", i+1)
	}

	t.Run("limit reached for the order", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/orders/1042/view", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusTooManyRequests, res.Code)
		assert.NotEmpty(t, res.Header().Get("Retry-After"))

		success, message := decodeStorefront(t, res.Body.Bytes())
		assert.False(t, success)
		assert.Contains(t, message, "Too many requests for this order")
	})

	t.Run("other orders and customers are counted separately", func(t *testing.T) {
		res, err := test.PerformRequest(t, "POST", "/orders/1043/view", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, res.Code)

		res, err = test.PerformRequest(t, "POST", "/customers/7/orders/check", nil, nil, router)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, res.Code)

		var customerKey bool
		for _, key := range mr.Keys() {
			if strings.HasPrefix(key, "ocpay_page_view_customer_7") {
				customerKey = true
			}
		}
		assert.True(t, customerKey, "keys: %v", mr.Keys())
	})
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware())
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	res, err := test.PerformRequest(t, "OPTIONS", "/x", nil, nil, router)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "*", res.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, res.Header().Get("Access-Control-Allow-Headers"), NonceHeader)
}
