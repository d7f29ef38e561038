package ocpay

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ocpay",
	Subsystem: "provider",
	Name:      "request_duration_seconds",
	Help:      "Latency of OCPay API calls by endpoint and status code.",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 45},
}, []string{"endpoint", "code"})

func observeRequest(path string, started time.Time, res *http.Response, err error) {
	code := "error"
	if err == nil && res != nil {
		code = strconv.Itoa(res.StatusCode)
	}
	requestDuration.WithLabelValues(endpointLabel(path), code).Observe(time.Since(started).Seconds())
}

// endpointLabel drops the reference from checkPayment paths to keep label cardinality bounded
func endpointLabel(path string) string {
	if strings.HasPrefix(path, "/ocpay/checkPayment/") {
		return "/ocpay/checkPayment"
	}
	return path
}
