// Package ratelimit implements sliding-window admission control on top of
// Redis sorted sets. The limiter is a protection mechanism, not a correctness
// mechanism: any failure of its backing store fails open.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"record-gateway/internal/common/logging"
	"record-gateway/internal/redis"
)

const keyPrefix = "rate_limit:"

type Config struct {
	DefaultLimit  int           `json:"default_limit"`
	DefaultWindow time.Duration `json:"default_window"`
	Enabled       bool          `json:"enabled"`
}

// Result is the outcome of one admission check
type Result struct {
	Allowed   bool  `json:"allowed"`
	Remaining int   `json:"remaining"`
	ResetMs   int64 `json:"reset_ms"`
	Limit     int   `json:"limit"`
}

type Limiter struct {
	client   *redis.Client
	config   *Config
	logger   logging.Logger
	rejected atomic.Int64
}

func NewLimiter(client *redis.Client, config *Config) *Limiter {
	if config == nil {
		config = &Config{
			DefaultLimit:  100,
			DefaultWindow: time.Minute,
			Enabled:       true,
		}
	}

	return &Limiter{
		client: client,
		config: config,
		logger: logging.GetGlobalLogger().WithFields(logging.String("component", "ratelimit")),
	}
}

// failOpen is the result returned whenever the limiter cannot do its job
func failOpen(limit int, window time.Duration) *Result {
	return &Result{
		Allowed:   true,
		Remaining: limit,
		ResetMs:   time.Now().Add(window).UnixMilli(),
		Limit:     limit,
	}
}

// Check evaluates the sliding window for key. On any backing-store failure,
// or when the limiter is disabled, it fails open: the request is allowed with
// the full limit remaining.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) *Result {
	if !l.config.Enabled || !l.client.Ready() {
		return failOpen(limit, window)
	}

	res, err := l.client.SlidingWindow(ctx, keyPrefix+key, limit, window)
	if err != nil {
		l.logger.Warn("Rate limit check failed, failing open",
			logging.String("key", key), logging.Err(err))
		return failOpen(limit, window)
	}

	if !res.Allowed {
		l.rejected.Add(1)
	}

	consumed := res.Count
	if res.Allowed {
		consumed++
	}
	remaining := limit - int(consumed)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   res.Allowed,
		Remaining: remaining,
		ResetMs:   time.Now().Add(window).UnixMilli(),
		Limit:     limit,
	}
}

// CheckDefault evaluates key against the configured default limit and window
func (l *Limiter) CheckDefault(ctx context.Context, key string) *Result {
	return l.Check(ctx, key, l.config.DefaultLimit, l.config.DefaultWindow)
}

// Rejections returns the number of requests denied since process start.
// Observability only; it is never consulted by the admission decision.
func (l *Limiter) Rejections() int64 {
	return l.rejected.Load()
}

// HTTPMiddleware enforces the default limit per keyFunc-derived key and
// exposes the outcome via standard rate-limit response headers.
func (l *Limiter) HTTPMiddleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result := l.CheckDefault(r.Context(), key)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetMs/1000))

			if !result.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(l.config.DefaultWindow.Seconds())))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Common key generation functions

// IPBasedKey keys the limit by client IP
func IPBasedKey(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return fmt.Sprintf("ip:%s", ip)
}

// ClientRouteKey keys the limit by caller identity and route so one noisy
// caller cannot exhaust another's budget on the same endpoint.
func ClientRouteKey(r *http.Request) string {
	caller := r.Header.Get("X-Client-ID")
	if caller == "" {
		caller = IPBasedKey(r)
	}
	return fmt.Sprintf("%s:%s:%s", caller, r.Method, r.URL.Path)
}

// EndpointBasedKey keys the limit by method and path only
func EndpointBasedKey(r *http.Request) string {
	return fmt.Sprintf("endpoint:%s:%s", r.Method, r.URL.Path)
}
