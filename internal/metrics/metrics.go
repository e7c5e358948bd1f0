// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpRequestsTotal is labelled by route pattern, method and status code.
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obra_http_requests_total",
			Help: "Total HTTP requests handled",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obra_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "method"},
	)

	// carryForwardTotal is labelled by outcome: ok, conflict, not_found,
	// invalid_state or error.
	carryForwardTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obra_carry_forward_total",
			Help: "Carry-forward attempts by outcome",
		},
		[]string{"outcome"},
	)

	carriedTasksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "obra_carried_tasks_total",
			Help: "Pending tasks cloned into a following week",
		},
	)

	rolloverJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obra_rollover_jobs_total",
			Help: "Rollover jobs by final status",
		},
		[]string{"status"},
	)

	reportCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obra_report_cache_lookups_total",
			Help: "Report cache lookups by result",
		},
		[]string{"view", "result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(carryForwardTotal)
	prometheus.MustRegister(carriedTasksTotal)
	prometheus.MustRegister(rolloverJobsTotal)
	prometheus.MustRegister(reportCacheTotal)
}

func RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordCarryForward counts one attempt and, on success, the tasks it carried.
func RecordCarryForward(outcome string, carried int) {
	carryForwardTotal.WithLabelValues(outcome).Inc()
	if carried > 0 {
		carriedTasksTotal.Add(float64(carried))
	}
}

func RecordRolloverJob(status string) {
	rolloverJobsTotal.WithLabelValues(status).Inc()
}

func RecordReportCache(view string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	reportCacheTotal.WithLabelValues(view, result).Inc()
}
