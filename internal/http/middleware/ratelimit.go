package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	visitorIdleTTL       = 3 * time.Minute
	visitorSweepInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds one token bucket per client address.
type visitors struct {
	mu    sync.Mutex
	items map[string]*visitor
	rps   rate.Limit
	burst int
}

func (v *visitors) get(key string, now time.Time) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()
	item, ok := v.items[key]
	if !ok {
		item = &visitor{limiter: rate.NewLimiter(v.rps, v.burst)}
		v.items[key] = item
	}
	item.lastSeen = now
	return item.limiter
}

func (v *visitors) sweep(now time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for key, item := range v.items {
		if now.Sub(item.lastSeen) > visitorIdleTTL {
			delete(v.items, key)
		}
	}
}

// RateLimit throttles /v1/ requests per client IP. Idle buckets are swept
// until ctx is cancelled. Probes on /healthz and /metrics are never limited.
func RateLimit(ctx context.Context, rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}

	table := &visitors{items: make(map[string]*visitor), rps: rate.Limit(rps), burst: burst}

	go func() {
		ticker := time.NewTicker(visitorSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				table.sweep(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/v1/") {
				next.ServeHTTP(w, r)
				return
			}
			if !table.get(extractIP(r.RemoteAddr), time.Now()).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
