package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/services/reconcile"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	"github.com/redis/go-redis/v9"
)

// ErrUnknownTier is returned for a sweep tier other than recent, full or stuck
var ErrUnknownTier = errors.New("unknown sweep tier")

// SweepAlerter is notified when a sweep run finished with errors
type SweepAlerter interface {
	SendSweepAlert(ctx context.Context, stats types.SweepStats) error
}

// SweepConfig bounds the sweep tiers
type SweepConfig struct {
	GatewayID       string
	StalenessWindow time.Duration
	RecentWindow    time.Duration
	StuckAge        time.Duration
	BatchSize       int
	LockTTL         time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
}

// SweepConfigFrom builds the sweep bounds from the service configuration
func SweepConfigFrom(ocpayConf *config.OCPayConfiguration, conf *config.ReconcileConfiguration) SweepConfig {
	return SweepConfig{
		GatewayID:       ocpayConf.GatewayID,
		StalenessWindow: conf.StalenessWindow,
		RecentWindow:    conf.RecentWindow,
		StuckAge:        conf.StuckAge,
		BatchSize:       conf.BatchSize,
		LockTTL:         conf.LockTTL,
		RetryAttempts:   conf.SweepRetryAttempts,
		RetryDelay:      conf.SweepRetryDelay,
	}
}

// Sweeper runs batch reconciliation over pending orders
type Sweeper struct {
	engine   reconcile.Reconciler
	store    types.OrderStore
	redis    redis.UniversalClient
	recorder *RunRecorder
	alerter  SweepAlerter
	conf     SweepConfig
	now      func() time.Time
}

// NewSweeper creates a new Sweeper
func NewSweeper(engine reconcile.Reconciler, store types.OrderStore, client redis.UniversalClient, conf SweepConfig) *Sweeper {
	if conf.BatchSize <= 0 {
		conf.BatchSize = 100
	}
	if conf.LockTTL <= 0 {
		conf.LockTTL = 5 * time.Minute
	}
	return &Sweeper{
		engine:   engine,
		store:    store,
		redis:    client,
		recorder: NewRunRecorder(client),
		conf:     conf,
		now:      time.Now,
	}
}

// SetAlerter sets the sink for failed sweep alerts
func (s *Sweeper) SetAlerter(alerter SweepAlerter) {
	s.alerter = alerter
}

// Recorder returns the last-run store of the sweeper
func (s *Sweeper) Recorder() *RunRecorder {
	return s.recorder
}

// Run executes one sweep of the given tier. Lock contention is not an error: the stats come back marked as skipped.
func (s *Sweeper) Run(ctx context.Context, tier types.SweepTier) (stats types.SweepStats, err error) {
	stats = types.SweepStats{Tier: tier, StartedAt: s.now()}

	query, err := s.query(tier)
	if err != nil {
		return stats, err
	}

	cleanup, acquired, err := acquireDistributedLock(ctx, s.redis, sweepLockKey, s.conf.LockTTL, "Sweep."+string(tier))
	if err != nil {
		return stats, err
	}
	if !acquired {
		logger.WithFields(logger.Fields{"Tier": string(tier)}).Infof("Sweep: another sweep holds the lock, skipping")
		stats.Skipped = true
		stats.FinishedAt = s.now()
		observeSweep(stats)
		return stats, nil
	}
	defer cleanup()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep %s: panic: %v", tier, r)
		}
		if err != nil {
			stats.Error = err.Error()
		}
		stats.FinishedAt = s.now()
		s.finish(ctx, stats)
	}()

	orders, err := s.store.Find(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("sweep %s: find orders: %w", tier, err)
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			break
		}

		stats.Checked++
		result, err := s.reconcileOne(ctx, tier, order.ID)
		if err != nil {
			stats.Errors++
			continue
		}
		if result.Updated() {
			stats.Updated++
		}
	}

	return stats, nil
}

// RunRecent, RunFull and RunStuck are the scheduled entry points
func (s *Sweeper) RunRecent() { s.runScheduled(types.SweepTierRecent) }

func (s *Sweeper) RunFull() { s.runScheduled(types.SweepTierFull) }

func (s *Sweeper) RunStuck() { s.runScheduled(types.SweepTierStuck) }

func (s *Sweeper) runScheduled(tier types.SweepTier) {
	if _, err := s.Run(context.Background(), tier); err != nil {
		logger.WithFields(logger.Fields{
			"Error": fmt.Sprintf("%v", err),
			"Tier":  string(tier),
		}).Errorf("Sweep.Run")
	}
}

// query selects the awaiting orders of a tier, oldest first, capped at the batch size
func (s *Sweeper) query(tier types.SweepTier) (types.OrderQuery, error) {
	now := s.now()
	query := types.OrderQuery{
		PaymentMethod:       s.conf.GatewayID,
		Statuses:            []types.OrderStatus{types.OrderStatusPending},
		HasPaymentReference: true,
		Limit:               s.conf.BatchSize,
	}
	if s.conf.StalenessWindow > 0 {
		query.CreatedAfter = now.Add(-s.conf.StalenessWindow)
	}

	switch tier {
	case types.SweepTierRecent:
		query.CreatedAfter = now.Add(-s.conf.RecentWindow)
	case types.SweepTierFull:
	case types.SweepTierStuck:
		query.CreatedBefore = now.Add(-s.conf.StuckAge)
	default:
		return query, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return query, nil
}

// reconcileOne reconciles a single order, retrying while the provider is unavailable
func (s *Sweeper) reconcileOne(ctx context.Context, tier types.SweepTier, orderID string) (result types.ReconcileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			logger.WithFields(logger.Fields{
				"Error":   fmt.Sprintf("%v", err),
				"OrderID": orderID,
				"Tier":    string(tier),
			}).Warnf("Sweep.Reconcile")
		}
	}()

	_ = utils.Retry(ctx, s.conf.RetryAttempts, s.conf.RetryDelay, func() error {
		result, err = s.engine.Reconcile(ctx, orderID, reconcile.WithTrigger("sweep_"+string(tier)))
		if errors.Is(err, reconcile.ErrProviderUnavailable) {
			return err
		}
		return nil
	})
	return result, err
}

func (s *Sweeper) finish(ctx context.Context, stats types.SweepStats) {
	observeSweep(stats)

	fields := logger.Fields{
		"Tier":    string(stats.Tier),
		"Checked": stats.Checked,
		"Updated": stats.Updated,
		"Errors":  stats.Errors,
	}
	logger.WithFields(fields).Infof("Sweep: finished")

	if err := s.recorder.Record(ctx, stats); err != nil {
		logger.WithFields(logger.Fields{
			"Error": fmt.Sprintf("%v", err),
			"Tier":  string(stats.Tier),
		}).Warnf("Sweep.Record")
	}

	if s.alerter != nil && (stats.Error != "" || stats.Errors > 0) {
		if err := s.alerter.SendSweepAlert(ctx, stats); err != nil {
			logger.WithFields(logger.Fields{
				"Error": fmt.Sprintf("%v", err),
				"Tier":  string(stats.Tier),
			}).Warnf("Sweep.Alert")
		}
	}
}
