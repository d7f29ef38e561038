package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oneclickdz/ocpay-reconciler/services/reconcile"
	"github.com/oneclickdz/ocpay-reconciler/tasks"
	"github.com/oneclickdz/ocpay-reconciler/types"
	u "github.com/oneclickdz/ocpay-reconciler/utils"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	"github.com/redis/go-redis/v9"
)

// ConnectionTester probes the payment provider
type ConnectionTester interface {
	TestConnection(ctx context.Context) types.ConnectionTestResult
}

// SweepRunner runs one sweep tier on demand
type SweepRunner interface {
	Run(ctx context.Context, tier types.SweepTier) (types.SweepStats, error)
}

// LastRunReader reads the recorded last run of a tier
type LastRunReader interface {
	LastRun(ctx context.Context, tier types.SweepTier) (*types.SweepStats, error)
}

// SchedulerInfo reports on the sweep scheduler
type SchedulerInfo interface {
	IsRunning() bool
	NextRuns() map[types.SweepTier]time.Time
}

// Config holds the admin diagnostics settings
type Config struct {
	GatewayID       string
	StalenessWindow time.Duration
	RecentWindow    time.Duration
	StuckAge        time.Duration
	Intervals       map[types.SweepTier]time.Duration
}

// Controller serves the admin endpoints
type Controller struct {
	store     types.OrderStore
	triggers  *reconcile.Triggers
	sweeper   SweepRunner
	runs      LastRunReader
	scheduler SchedulerInfo
	provider  ConnectionTester
	redis     redis.UniversalClient
	conf      Config
	now       func() time.Time
}

// NewController creates the admin controller. provider and scheduler may be nil
// when OCPay is not configured or the scheduler is not running in this process.
func NewController(
	store types.OrderStore,
	triggers *reconcile.Triggers,
	sweeper SweepRunner,
	runs LastRunReader,
	scheduler SchedulerInfo,
	provider ConnectionTester,
	client redis.UniversalClient,
	conf Config,
) *Controller {
	return &Controller{
		store:     store,
		triggers:  triggers,
		sweeper:   sweeper,
		runs:      runs,
		scheduler: scheduler,
		provider:  provider,
		redis:     client,
		conf:      conf,
		now:       time.Now,
	}
}

// CheckOrder reconciles one order from the admin detail view; on-hold orders are rechecked too
func (ctrl *Controller) CheckOrder(ctx *gin.Context) {
	orderID := ctx.Param("order_id")

	result, ok := ctrl.triggers.AdminOrderView(ctx.Request.Context(), orderID)
	if !ok {
		order, err := ctrl.store.FindByID(ctx.Request.Context(), orderID)
		if errors.Is(err, types.ErrOrderNotFound) {
			u.APIResponse(ctx, http.StatusNotFound, "error", "Order not found", nil)
			return
		}
		if err == nil {
			result = types.ReconcileResult{OrderID: order.ID, Status: order.Status}
		}
		u.APIResponse(ctx, http.StatusOK, "success", "Payment status could not be checked", result)
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "Payment status checked", result)
}

// CheckOrders reconciles a bounded set of pending orders from the admin list view
func (ctrl *Controller) CheckOrders(ctx *gin.Context) {
	results := ctrl.triggers.AdminOrderList(ctx.Request.Context())
	if results == nil {
		results = []types.ReconcileResult{}
	}

	updated := 0
	for _, r := range results {
		if r.Updated() {
			updated++
		}
	}

	u.APIResponse(ctx, http.StatusOK, "success", fmt.Sprintf("Checked %d orders, %d updated", len(results), updated), results)
}

// RunSweep triggers a sweep tier manually through the same lock as the scheduler
func (ctrl *Controller) RunSweep(ctx *gin.Context) {
	tier := types.SweepTier(ctx.Param("tier"))

	stats, err := ctrl.sweeper.Run(ctx.Request.Context(), tier)
	if err != nil {
		if errors.Is(err, tasks.ErrUnknownTier) {
			u.APIResponse(ctx, http.StatusBadRequest, "error", fmt.Sprintf("Unknown sweep tier %q", tier), nil)
			return
		}
		logger.WithFields(logger.Fields{
			"Error": fmt.Sprintf("%v", err),
			"Tier":  string(tier),
		}).Errorf("Admin.RunSweep")
		u.APIResponse(ctx, http.StatusInternalServerError, "error", "Sweep failed", stats)
		return
	}

	if stats.Skipped {
		u.APIResponse(ctx, http.StatusConflict, "error", "Another sweep is running", stats)
		return
	}
	u.APIResponse(ctx, http.StatusOK, "success", "Sweep completed", stats)
}

// Diagnostics reports health checks, order statistics and the cron status
func (ctrl *Controller) Diagnostics(ctx *gin.Context) {
	report, err := ctrl.Report(ctx.Request.Context())
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error": fmt.Sprintf("%v", err),
		}).Errorf("Admin.Diagnostics.Stats")
		u.APIResponse(ctx, http.StatusInternalServerError, "error", "Failed to load order statistics", nil)
		return
	}

	u.APIResponse(ctx, http.StatusOK, "success", "OK", report)
}

// Report gathers the diagnostics payload
func (ctrl *Controller) Report(ctx context.Context) (types.DiagnosticsResponse, error) {
	stats, err := ctrl.orderStats(ctx)
	if err != nil {
		return types.DiagnosticsResponse{}, err
	}

	return types.DiagnosticsResponse{
		Checks: ctrl.healthChecks(ctx),
		Stats:  stats,
		Crons:  ctrl.cronStatus(ctx),
	}, nil
}

// TestConnection probes the provider with a dummy reference
func (ctrl *Controller) TestConnection(ctx *gin.Context) {
	if ctrl.provider == nil {
		u.APIResponse(ctx, http.StatusOK, "success", "API key not configured", types.ConnectionTestResult{
			Message: "API key not configured",
		})
		return
	}

	result := ctrl.provider.TestConnection(ctx.Request.Context())
	u.APIResponse(ctx, http.StatusOK, "success", result.Message, result)
}

func (ctrl *Controller) healthChecks(ctx context.Context) map[string]types.HealthCheck {
	checks := map[string]types.HealthCheck{}

	apiKey := types.HealthCheck{Label: "API Key Configured", Status: ctrl.provider != nil}
	if !apiKey.Status {
		apiKey.Message = "API key not configured"
	}
	checks["api_key"] = apiKey

	provider := types.HealthCheck{Label: "OCPay API Reachable"}
	if ctrl.provider != nil {
		result := ctrl.provider.TestConnection(ctx)
		provider.Status = result.Reachable && result.KeyValid
		if !provider.Status {
			provider.Message = result.Message
		}
	} else {
		provider.Message = "API key not configured"
	}
	checks["provider"] = provider

	redisCheck := types.HealthCheck{Label: "Redis Reachable"}
	if ctrl.redis != nil {
		if err := ctrl.redis.Ping(ctx).Err(); err != nil {
			redisCheck.Message = err.Error()
		} else {
			redisCheck.Status = true
		}
	} else {
		redisCheck.Message = "Redis not configured"
	}
	checks["redis"] = redisCheck

	scheduler := types.HealthCheck{Label: "Sweep Scheduler Running"}
	if ctrl.scheduler != nil && ctrl.scheduler.IsRunning() {
		scheduler.Status = true
	} else {
		scheduler.Message = "Sweep scheduler is not running in this process"
	}
	checks["scheduler"] = scheduler

	return checks
}

func (ctrl *Controller) orderStats(ctx context.Context) (types.OrderStats, error) {
	var stats types.OrderStats
	now := ctrl.now()

	pending := types.OrderQuery{
		PaymentMethod: ctrl.conf.GatewayID,
		Statuses:      []types.OrderStatus{types.OrderStatusPending},
	}

	var err error
	if stats.PendingCount, err = ctrl.store.Count(ctx, pending); err != nil {
		return stats, err
	}

	recent := pending
	recent.CreatedAfter = now.Add(-ctrl.conf.RecentWindow)
	if stats.RecentCount, err = ctrl.store.Count(ctx, recent); err != nil {
		return stats, err
	}

	stuck := pending
	stuck.CreatedBefore = now.Add(-ctrl.conf.StuckAge)
	if stats.StuckCount, err = ctrl.store.Count(ctx, stuck); err != nil {
		return stats, err
	}

	year, month, day := now.Date()
	processed := types.OrderQuery{
		PaymentMethod: ctrl.conf.GatewayID,
		Statuses:      []types.OrderStatus{types.OrderStatusProcessing, types.OrderStatusCompleted},
		CreatedAfter:  time.Date(year, month, day, 0, 0, 0, 0, now.Location()),
	}
	if stats.TodayProcessed, err = ctrl.store.Count(ctx, processed); err != nil {
		return stats, err
	}

	return stats, nil
}

func (ctrl *Controller) cronStatus(ctx context.Context) []types.CronStatus {
	var next map[types.SweepTier]time.Time
	running := ctrl.scheduler != nil && ctrl.scheduler.IsRunning()
	if running {
		next = ctrl.scheduler.NextRuns()
	}

	tiers := make([]types.SweepTier, 0, len(ctrl.conf.Intervals))
	for tier := range ctrl.conf.Intervals {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool {
		return ctrl.conf.Intervals[tiers[i]] < ctrl.conf.Intervals[tiers[j]]
	})

	crons := make([]types.CronStatus, 0, len(tiers))
	for _, tier := range tiers {
		status := types.CronStatus{
			Tier:     tier,
			Interval: ctrl.conf.Intervals[tier].String(),
			Active:   running,
		}
		if t, ok := next[tier]; ok && !t.IsZero() {
			status.NextRun = &t
		}

		if ctrl.runs != nil {
			last, err := ctrl.runs.LastRun(ctx, tier)
			if err != nil {
				logger.WithFields(logger.Fields{
					"Error": fmt.Sprintf("%v", err),
					"Tier":  string(tier),
				}).Warnf("Admin.Diagnostics.LastRun")
			}
			status.LastRun = last
		}
		crons = append(crons, status)
	}
	return crons
}
