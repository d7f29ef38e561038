package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpay",
	Subsystem: "event",
	Name:      "deliveries_total",
	Help:      "Payment event deliveries by sink and result.",
}, []string{"sink", "result"})

func observeDelivery(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	deliveries.WithLabelValues(sink, result).Inc()
}
