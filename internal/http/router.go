package httpserver

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iago/obra-back/internal/http/handlers"
	"github.com/iago/obra-back/internal/http/middleware"
)

type RouterDependencies struct {
	// Context bounds background middleware work such as limiter sweeps.
	Context        context.Context
	API            *handlers.API
	Logger         *log.Logger
	JWTSecret      string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", deps.API.Health)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/weeks/current", deps.API.CurrentWeek)
	mux.HandleFunc("/v1/sites", deps.API.Sites)
	mux.HandleFunc("/v1/sites/", deps.API.SiteRoutes)
	mux.HandleFunc("/v1/tasks/", deps.API.TaskStatus)
	mux.HandleFunc("/v1/users", deps.API.Users)
	mux.HandleFunc("/v1/users/", deps.API.UserRoutes)
	mux.HandleFunc("/v1/reports/", deps.API.Reports)
	mux.HandleFunc("/v1/snapshots", deps.API.Snapshots)
	mux.HandleFunc("/v1/snapshots/", deps.API.SnapshotByWeek)
	mux.HandleFunc("/v1/rollovers", deps.API.Rollovers)
	mux.HandleFunc("/v1/jobs/", deps.API.JobStatus)

	handler := http.Handler(mux)
	handler = middleware.Auth(deps.JWTSecret)(handler)
	handler = middleware.RateLimit(ctx, deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Metrics(routeTemplate)(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}

// routeTemplate collapses ids in a request path into placeholders,
// e.g. /v1/sites/abc/tasks becomes /v1/sites/{id}/tasks.
func routeTemplate(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 3 || segments[0] != "v1" {
		return path
	}
	switch segments[1] {
	case "sites", "tasks", "users", "jobs":
		segments[2] = "{id}"
	case "snapshots":
		segments[2] = "{week_key}"
	}
	return "/" + strings.Join(segments, "/")
}
