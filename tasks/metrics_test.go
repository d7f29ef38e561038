package tasks

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestMetricNames(t *testing.T) {
	cases := []struct {
		collector prometheus.Collector
		name      string
	}{
		{sweepRuns, "ocpay_sweep_runs_total"},
		{sweepOrders, "ocpay_sweep_orders_total"},
	}

	for _, tc := range cases {
		ch := make(chan *prometheus.Desc, 1)
		tc.collector.Describe(ch)
		assert.Contains(t, (<-ch).String(), `fqName: "`+tc.name+`"`)
	}
}
