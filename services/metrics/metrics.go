// Package metrics holds the prometheus collectors of the api and worker binaries.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darasa", Name: "http_requests_total", Help: "Handled HTTP requests",
	}, []string{"method", "route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "darasa", Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	Enrollments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darasa", Name: "enrollment_requests_total", Help: "Enroll/unenroll outcomes",
	}, []string{"action", "outcome"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "darasa", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darasa", Name: "job_runs_total", Help: "Processed background jobs",
	}, []string{"job"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "darasa", Name: "job_errors_total", Help: "Failed background jobs",
	}, []string{"job"})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "darasa", Name: "job_duration_seconds", Help: "Background job duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, Enrollments, DBPing, JobRuns, JobErrors, JobDuration)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

// ObserveEnrollment counts one enroll/unenroll call by its outcome ("ok" or the error reason).
func ObserveEnrollment(action, outcome string) {
	Enrollments.WithLabelValues(action, outcome).Inc()
}

// ObserveJob records one run of a background job.
func ObserveJob(job string, start time.Time, err error) {
	JobRuns.WithLabelValues(job).Inc()
	if err != nil {
		JobErrors.WithLabelValues(job).Inc()
	}
	JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}

// Middleware counts requests by their route pattern, so path params do not blow up label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			if err := next(ctx); err != nil {
				// render the error now so the committed status is the mapped one
				ctx.Error(err)
			}
			status := ctx.Response().Status
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method
			HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
