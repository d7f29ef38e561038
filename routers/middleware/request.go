package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/types"
	u "github.com/oneclickdz/ocpay-reconciler/utils"
	"github.com/redis/go-redis/v9"
)

var (
	unauthenticatedLimiter gin.HandlerFunc
	authenticatedLimiter   gin.HandlerFunc
	initOnce               sync.Once
)

// RateLimitMiddleware applies per-second rate limiting based on the request type (authenticated/unauthenticated)
func RateLimitMiddleware(conf *config.ServerConfiguration) gin.HandlerFunc {
	initOnce.Do(func() {
		unauthenticatedStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Second,
			Limit: uint(conf.RateLimitUnauthenticated),
		})
		unauthenticatedLimiter = ratelimit.RateLimiter(unauthenticatedStore, &ratelimit.Options{
			ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
				u.APIResponse(c, http.StatusTooManyRequests, "error",
					"Too many requests from this IP address",
					map[string]interface{}{
						"retry_after": time.Until(info.ResetTime).Seconds(),
						"limit":       info.Limit,
					})
				c.Abort()
			},
			KeyFunc: func(c *gin.Context) string {
				return "ip:" + c.ClientIP()
			},
		})

		authenticatedStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Second,
			Limit: uint(conf.RateLimitAuthenticated),
		})
		authenticatedLimiter = ratelimit.RateLimiter(authenticatedStore, &ratelimit.Options{
			ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
				u.APIResponse(c, http.StatusTooManyRequests, "error",
					"Too many requests for this token",
					map[string]interface{}{
						"retry_after": time.Until(info.ResetTime).Seconds(),
						"limit":       info.Limit,
					})
				c.Abort()
			},
			KeyFunc: func(c *gin.Context) string {
				return "auth:" + c.GetHeader("Authorization")
			},
		})
	})

	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			authenticatedLimiter(c)
		} else {
			unauthenticatedLimiter(c)
		}
	}
}

// StatusCheckLimiter caps poll requests per customer, or per client IP for guests.
// Counters live in redis so the limit holds across replicas.
func StatusCheckLimiter(client *redis.Client, limit int) gin.HandlerFunc {
	return redisLimiter(client, limit, "Too many status check requests. Please wait a moment before trying again.",
		func(c *gin.Context) string {
			if customerID := c.GetString(CustomerIDKey); customerID != "" {
				return "ocpay_status_check_user_" + customerID
			}
			return "ocpay_status_check_ip_" + c.ClientIP()
		})
}

// PageViewLimiter caps reconciling page views per customer, per order, or per client IP
func PageViewLimiter(client *redis.Client, limit int) gin.HandlerFunc {
	return redisLimiter(client, limit, "Too many requests for this order. Please wait a moment before trying again.",
		func(c *gin.Context) string {
			if customerID := c.Param("customer_id"); customerID != "" {
				return "ocpay_page_view_customer_" + customerID
			}
			if orderID := c.Param("order_id"); orderID != "" {
				return "ocpay_page_view_order_" + orderID
			}
			return "ocpay_page_view_ip_" + c.ClientIP()
		})
}

func redisLimiter(client *redis.Client, limit int, message string, keyFunc func(c *gin.Context) string) gin.HandlerFunc {
	if limit <= 0 {
		limit = 10
	}

	store := ratelimit.RedisStore(&ratelimit.RedisOptions{
		RedisClient: client,
		Rate:        time.Minute,
		Limit:       uint(limit),
	})

	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(time.Until(info.ResetTime).Seconds()))))
			u.StorefrontResponse(c, http.StatusTooManyRequests, false, types.MessageData{Message: message})
			c.Abort()
		},
		KeyFunc: keyFunc,
	})
}
