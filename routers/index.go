package routers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/controllers"
	"github.com/oneclickdz/ocpay-reconciler/controllers/admin"
	"github.com/oneclickdz/ocpay-reconciler/routers/middleware"
	u "github.com/oneclickdz/ocpay-reconciler/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Dependencies are the controllers and shared clients the routes are served by
type Dependencies struct {
	Storefront *controllers.Controller
	Admin      *admin.Controller
	Redis      *redis.Client
	Server     *config.ServerConfiguration
	Auth       *config.AuthConfiguration
	Reconcile  *config.ReconcileConfiguration
}

// Routes builds the gin engine with the global middleware and every route registered
func Routes(deps Dependencies) *gin.Engine {
	if deps.Server.Environment == "production" || deps.Server.Environment == "staging" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RateLimitMiddleware(deps.Server))

	RegisterRoutes(router, deps)

	return router
}

// RegisterRoutes adds the storefront, admin and metrics routes
func RegisterRoutes(route *gin.Engine, deps Dependencies) {
	route.NoRoute(func(ctx *gin.Context) {
		u.APIResponse(ctx, http.StatusNotFound, "error", "Route Not Found", nil)
	})

	route.GET("/health", func(ctx *gin.Context) {
		u.APIResponse(ctx, http.StatusOK, "success", "OK", nil)
	})
	route.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := route.Group("/v1/")

	storefront := deps.Storefront
	v1.POST(
		"orders/:order_id/check",
		middleware.PollNonceMiddleware(deps.Auth.Secret),
		middleware.StatusCheckLimiter(deps.Redis, deps.Reconcile.StatusCheckRateLimit),
		storefront.CheckOrderStatus,
	)
	v1.POST(
		"orders/:order_id/pay",
		middleware.StorefrontAuthMiddleware(deps.Auth.StorefrontAPIKey),
		storefront.CreatePayment,
	)
	v1.GET(
		"ocpay/return",
		middleware.PageViewLimiter(deps.Redis, deps.Reconcile.PageViewRateLimit),
		storefront.PaymentReturn,
	)

	storefrontRoutes := v1.Group("storefront/")
	storefrontRoutes.Use(middleware.StorefrontAuthMiddleware(deps.Auth.StorefrontAPIKey))
	storefrontRoutes.Use(middleware.PageViewLimiter(deps.Redis, deps.Reconcile.PageViewRateLimit))
	storefrontRoutes.POST("orders/:order_id/thank-you", storefront.ThankYou)
	storefrontRoutes.POST("orders/:order_id/view", storefront.ViewOrder)
	storefrontRoutes.POST("customers/:customer_id/orders/check", storefront.CustomerOrders)

	adminCtrl := deps.Admin
	adminRoutes := v1.Group("admin/")
	adminRoutes.Use(middleware.AdminAuthMiddleware(deps.Auth.AdminAPIKey))
	adminRoutes.POST("orders/:order_id/check", adminCtrl.CheckOrder)
	adminRoutes.POST("orders/check", adminCtrl.CheckOrders)
	adminRoutes.POST("sweeps/:tier/run", adminCtrl.RunSweep)
	adminRoutes.GET("diagnostics", adminCtrl.Diagnostics)
	adminRoutes.POST("diagnostics/test-connection", adminCtrl.TestConnection)
}
