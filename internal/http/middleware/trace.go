package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/iago/obra-back/internal/metrics"
)

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func Trace(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			if logger != nil {
				logger.Printf(
					"trace request_id=%s method=%s path=%s status=%d duration_ms=%d",
					GetRequestID(r.Context()),
					r.Method,
					r.URL.Path,
					recorder.status,
					time.Since(start).Milliseconds(),
				)
			}
		})
	}
}

// Metrics records request counts and latency per route template. routeOf
// maps a concrete path to its template so ids don't explode cardinality.
func Metrics(routeOf func(path string) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			metrics.RecordHTTPRequest(routeOf(r.URL.Path), r.Method, recorder.status, time.Since(start))
		})
	}
}
