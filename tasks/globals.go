package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
	"github.com/redis/go-redis/v9"
)

var reconcileConf = config.ReconcileConfig()

const (
	// sweepLockKey is shared by every sweep tier so that at most one sweep runs at a time
	sweepLockKey = "ocpay_reconcile_sweep_lock"

	lastRunKeyPrefix = "ocpay_reconcile_last_run_"
)

// releaseLockScript deletes the lock only while it still carries the holder's token
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// acquireDistributedLock acquires a distributed lock using Redis SetNX
// Returns:
//   - cleanup: function to release the lock (call with defer)
//   - acquired: true if lock was acquired, false if another instance has the lock
//   - err: error if lock acquisition failed
func acquireDistributedLock(ctx context.Context, client redis.UniversalClient, lockKey string, ttl time.Duration, functionName string) (cleanup func(), acquired bool, err error) {
	token := uuid.New().String()

	lockAcquired, err := client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error": fmt.Sprintf("%v", err),
			"Lock":  lockKey,
		}).Errorf("%s: Failed to acquire lock", functionName)
		return nil, false, err
	}
	if !lockAcquired {
		return nil, false, nil
	}

	cleanup = func() {
		// release even when the caller's context has been cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := releaseLockScript.Run(releaseCtx, client, []string{lockKey}, token).Err(); err != nil {
			logger.WithFields(logger.Fields{
				"Error": fmt.Sprintf("%v", err),
				"Lock":  lockKey,
			}).Warnf("%s: Failed to release lock", functionName)
		}
	}
	return cleanup, true, nil
}
