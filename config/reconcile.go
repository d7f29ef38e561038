package config

import (
	"time"

	"github.com/spf13/viper"
)

// ReconcileConfiguration defines the reconciliation engine, sweep and poller settings
type ReconcileConfiguration struct {
	StalenessWindow    time.Duration
	BatchSize          int
	RecentWindow       time.Duration
	StuckAge           time.Duration
	RecentInterval     time.Duration
	FullInterval       time.Duration
	StuckInterval      time.Duration
	LockTTL            time.Duration
	CustomerListLimit  int
	AdminListLimit     int
	PageViewTimeout    time.Duration
	PageViewAsync      bool
	SweepRetryAttempts int
	SweepRetryDelay    time.Duration

	PollMaxAttempts      int
	PollRedirectDelay    time.Duration
	StatusCheckRateLimit int
	PageViewRateLimit    int
}

// ReconcileConfig retrieves the reconciliation configuration
func ReconcileConfig() *ReconcileConfiguration {
	viper.SetDefault("RECONCILE_STALENESS_WINDOW", 24) // hours
	viper.SetDefault("RECONCILE_BATCH_SIZE", 100)
	viper.SetDefault("RECONCILE_RECENT_WINDOW", 30) // minutes
	viper.SetDefault("RECONCILE_STUCK_AGE", 60)     // minutes
	viper.SetDefault("RECONCILE_RECENT_INTERVAL", 5)
	viper.SetDefault("RECONCILE_FULL_INTERVAL", 20)
	viper.SetDefault("RECONCILE_STUCK_INTERVAL", 30)
	viper.SetDefault("RECONCILE_LOCK_TTL", 300) // seconds
	viper.SetDefault("RECONCILE_CUSTOMER_LIST_LIMIT", 5)
	viper.SetDefault("RECONCILE_ADMIN_LIST_LIMIT", 20)
	viper.SetDefault("RECONCILE_PAGE_VIEW_TIMEOUT", 10)
	viper.SetDefault("RECONCILE_PAGE_VIEW_ASYNC", false)
	viper.SetDefault("RECONCILE_SWEEP_RETRY_ATTEMPTS", 1)
	viper.SetDefault("RECONCILE_SWEEP_RETRY_DELAY", 2)
	viper.SetDefault("POLL_MAX_ATTEMPTS", 40)
	viper.SetDefault("POLL_REDIRECT_DELAY", 2)
	viper.SetDefault("STATUS_CHECK_RATE_LIMIT", 10) // per minute
	viper.SetDefault("PAGE_VIEW_RATE_LIMIT", 10)    // per minute

	return &ReconcileConfiguration{
		StalenessWindow:      time.Duration(viper.GetInt("RECONCILE_STALENESS_WINDOW")) * time.Hour,
		BatchSize:            viper.GetInt("RECONCILE_BATCH_SIZE"),
		RecentWindow:         time.Duration(viper.GetInt("RECONCILE_RECENT_WINDOW")) * time.Minute,
		StuckAge:             time.Duration(viper.GetInt("RECONCILE_STUCK_AGE")) * time.Minute,
		RecentInterval:       time.Duration(viper.GetInt("RECONCILE_RECENT_INTERVAL")) * time.Minute,
		FullInterval:         time.Duration(viper.GetInt("RECONCILE_FULL_INTERVAL")) * time.Minute,
		StuckInterval:        time.Duration(viper.GetInt("RECONCILE_STUCK_INTERVAL")) * time.Minute,
		LockTTL:              time.Duration(viper.GetInt("RECONCILE_LOCK_TTL")) * time.Second,
		CustomerListLimit:    viper.GetInt("RECONCILE_CUSTOMER_LIST_LIMIT"),
		AdminListLimit:       viper.GetInt("RECONCILE_ADMIN_LIST_LIMIT"),
		PageViewTimeout:      time.Duration(viper.GetInt("RECONCILE_PAGE_VIEW_TIMEOUT")) * time.Second,
		PageViewAsync:        viper.GetBool("RECONCILE_PAGE_VIEW_ASYNC"),
		SweepRetryAttempts:   viper.GetInt("RECONCILE_SWEEP_RETRY_ATTEMPTS"),
		SweepRetryDelay:      time.Duration(viper.GetInt("RECONCILE_SWEEP_RETRY_DELAY")) * time.Second,
		PollMaxAttempts:      viper.GetInt("POLL_MAX_ATTEMPTS"),
		PollRedirectDelay:    time.Duration(viper.GetInt("POLL_REDIRECT_DELAY")) * time.Second,
		StatusCheckRateLimit: viper.GetInt("STATUS_CHECK_RATE_LIMIT"),
		PageViewRateLimit:    viper.GetInt("PAGE_VIEW_RATE_LIMIT"),
	}
}
