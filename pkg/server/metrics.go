package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "stargate"

var (
	requestsTotalCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "requests_total",
		Help:      "The total number of GraphQL requests answered, by HTTP status code.",
	}, []string{"code"})

	requestDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:                       metricsNamespace,
		Name:                            "request_duration_ms",
		Help:                            "The time taken to answer a GraphQL request, by HTTP status code.",
		Buckets:                         []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: time.Hour,
	}, []string{"code"})
)

func observeRequest(status int, start time.Time) {
	code := strconv.Itoa(status)
	requestsTotalCounter.WithLabelValues(code).Inc()
	requestDurationHistogram.WithLabelValues(code).Observe(float64(time.Since(start).Milliseconds()))
}
