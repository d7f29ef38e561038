package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/oneclickdz/ocpay-reconciler/types"
	u "github.com/oneclickdz/ocpay-reconciler/utils"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	"github.com/oneclickdz/ocpay-reconciler/utils/token"
)

// NonceHeader carries the poll nonce when it is not in the body
const NonceHeader = "X-OCPay-Nonce"

// CustomerIDKey is the context key holding the customer a poll nonce was issued to
const CustomerIDKey = "customer_id"

// PollNonceMiddleware verifies the per-order poll nonce of the status endpoint
func PollNonceMiddleware(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		nonce := ctx.GetHeader(NonceHeader)
		if nonce == "" {
			var payload types.StatusCheckPayload
			if err := ctx.ShouldBindBodyWith(&payload, binding.JSON); err == nil {
				nonce = payload.Nonce
			}
		}

		claims, err := token.ValidatePollNonce(secret, nonce, ctx.Param("order_id"))
		if err != nil {
			logger.WithFields(logger.Fields{
				"Error":   err.Error(),
				"OrderID": ctx.Param("order_id"),
				"IP":      ctx.ClientIP(),
			}).Warnf("PollNonceMiddleware")
			u.StorefrontResponse(ctx, http.StatusForbidden, false, types.MessageData{Message: "Invalid request."})
			ctx.Abort()
			return
		}

		if claims.CustomerID != "" {
			ctx.Set(CustomerIDKey, claims.CustomerID)
		}
		ctx.Next()
	}
}

// AdminAuthMiddleware requires the admin API key as a bearer token
func AdminAuthMiddleware(apiKey string) gin.HandlerFunc {
	return bearerAuth(apiKey, "Invalid or missing admin token")
}

// StorefrontAuthMiddleware requires the storefront service key as a bearer token.
// The storefront backend calls the page-view and checkout routes with it.
func StorefrontAuthMiddleware(apiKey string) gin.HandlerFunc {
	return bearerAuth(apiKey, "Invalid or missing storefront token")
}

// bearerAuth rejects every request when apiKey is empty
func bearerAuth(apiKey, message string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		bearer, found := strings.CutPrefix(ctx.GetHeader("Authorization"), "Bearer ")
		if apiKey == "" || !found || subtle.ConstantTimeCompare([]byte(bearer), []byte(apiKey)) != 1 {
			u.APIResponse(ctx, http.StatusUnauthorized, "error", message, nil)
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
