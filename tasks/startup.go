package tasks

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

// Intervals returns the schedule of each sweep tier
func Intervals() map[types.SweepTier]time.Duration {
	return map[types.SweepTier]time.Duration{
		types.SweepTierRecent: reconcileConf.RecentInterval,
		types.SweepTierFull:   reconcileConf.FullInterval,
		types.SweepTierStuck:  reconcileConf.StuckInterval,
	}
}

// StartCronJobs schedules the sweep tiers and starts the scheduler
func StartCronJobs(sweeper *Sweeper) *gocron.Scheduler {
	// Use the system's local timezone instead of hardcoded UTC to prevent timezone conflicts
	scheduler := gocron.NewScheduler(time.Local)
	// a tier never overlaps itself; tiers exclude each other through the sweep lock
	scheduler.SingletonModeAll()

	intervals := Intervals()

	// Sweep orders created within the recent window every 5 minutes
	_, err := scheduler.Every(intervals[types.SweepTierRecent]).Tag(string(types.SweepTierRecent)).Do(sweeper.RunRecent)
	if err != nil {
		logger.Errorf("StartCronJobs for RunRecent: %v", err)
	}

	// Full and stuck wait one interval so boot does not fire three sweeps into the same lock
	// Sweep all orders within the staleness window every 20 minutes
	_, err = scheduler.Every(intervals[types.SweepTierFull]).Tag(string(types.SweepTierFull)).WaitForSchedule().Do(sweeper.RunFull)
	if err != nil {
		logger.Errorf("StartCronJobs for RunFull: %v", err)
	}

	// Sweep orders pending for over an hour every 30 minutes
	_, err = scheduler.Every(intervals[types.SweepTierStuck]).Tag(string(types.SweepTierStuck)).WaitForSchedule().Do(sweeper.RunStuck)
	if err != nil {
		logger.Errorf("StartCronJobs for RunStuck: %v", err)
	}

	// Start scheduler
	scheduler.StartAsync()
	return scheduler
}

// NextRuns returns when each tagged sweep tier fires next
func NextRuns(scheduler *gocron.Scheduler) map[types.SweepTier]time.Time {
	next := make(map[types.SweepTier]time.Time)
	if scheduler == nil {
		return next
	}
	for _, job := range scheduler.Jobs() {
		for _, tag := range job.Tags() {
			next[types.SweepTier(tag)] = job.NextRun()
		}
	}
	return next
}

// SchedulerStatus exposes a scheduler to diagnostics. A nil scheduler reports not running.
type SchedulerStatus struct {
	Scheduler *gocron.Scheduler
}

func (s SchedulerStatus) IsRunning() bool {
	return s.Scheduler != nil && s.Scheduler.IsRunning()
}

func (s SchedulerStatus) NextRuns() map[types.SweepTier]time.Time {
	return NextRuns(s.Scheduler)
}
