package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

// Allower is the check performed for every request. *Limiter satisfies it.
type Allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// KeyFunc derives the client key a request is counted against.
type KeyFunc func(*http.Request) string

// ClientIP keys requests by remote address without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over limit per window with 429. Limiter
// failures are logged and the request is let through.
func Middleware(limiter Allower, limit int, window time.Duration, key KeyFunc, logger *log.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	if logger == nil {
		logger = log.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := limiter.Allow(r.Context(), r.URL.Path+":"+key(r), limit, window)
			if err != nil {
				logger.Warn("rate limiter unavailable", "path", r.URL.Path, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(math.Ceil(time.Until(result.ResetAt).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"message": "Too many requests, please try again later",
			})
		})
	}
}
