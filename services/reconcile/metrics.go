package reconcile

import (
	"errors"

	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpay",
	Subsystem: "reconcile",
	Name:      "results_total",
	Help:      "Reconciliation results by trigger and outcome.",
}, []string{"trigger", "outcome"})

func observeOutcome(trigger string, result types.ReconcileResult, err error) {
	outcome := string(result.Outcome)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		outcome = "order_not_found"
	case errors.Is(err, ErrInvalidResponse):
		outcome = "invalid_response"
	case errors.Is(err, ErrProviderUnavailable):
		outcome = "provider_unavailable"
	case err != nil:
		outcome = "error"
	case result.Outcome == types.OutcomeSkipped:
		outcome = "skipped_" + string(result.SkipReason)
	}
	reconcileTotal.WithLabelValues(trigger, outcome).Inc()
}
