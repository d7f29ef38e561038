package tasks

import (
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ocpay",
		Subsystem: "sweep",
		Name:      "runs_total",
		Help:      "Sweep runs by tier and result.",
	}, []string{"tier", "result"})

	sweepOrders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ocpay",
		Subsystem: "sweep",
		Name:      "orders_total",
		Help:      "Orders processed by sweeps, by tier and result.",
	}, []string{"tier", "result"})
)

func observeSweep(stats types.SweepStats) {
	tier := string(stats.Tier)

	switch {
	case stats.Skipped:
		sweepRuns.WithLabelValues(tier, "skipped").Inc()
		return
	case stats.Error != "":
		sweepRuns.WithLabelValues(tier, "error").Inc()
	default:
		sweepRuns.WithLabelValues(tier, "ok").Inc()
	}

	sweepOrders.WithLabelValues(tier, "checked").Add(float64(stats.Checked))
	sweepOrders.WithLabelValues(tier, "updated").Add(float64(stats.Updated))
	sweepOrders.WithLabelValues(tier, "error").Add(float64(stats.Errors))
}
