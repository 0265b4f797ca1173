package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"record-gateway/internal/redis"
)

func setupLimiter(t *testing.T, config *Config) (*Limiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, client.Initialize(context.Background()))
	t.Cleanup(func() { _ = client.Shutdown() })

	return NewLimiter(client, config), mr
}

func TestLimiter_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("admits up to the limit", func(t *testing.T) {
		limiter, _ := setupLimiter(t, nil)

		for i := 0; i < 3; i++ {
			res := limiter.Check(ctx, "client-a", 3, time.Minute)
			assert.True(t, res.Allowed, "request %d should be admitted", i+1)
			assert.Equal(t, 3, res.Limit)
			assert.Equal(t, 2-i, res.Remaining)
		}
	})

	t.Run("rejects the request over the limit", func(t *testing.T) {
		limiter, _ := setupLimiter(t, nil)

		for i := 0; i < 3; i++ {
			limiter.Check(ctx, "client-a", 3, time.Minute)
		}

		res := limiter.Check(ctx, "client-a", 3, time.Minute)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.Equal(t, int64(1), limiter.Rejections())
	})

	t.Run("admits again after the window ages out", func(t *testing.T) {
		limiter, mr := setupLimiter(t, nil)

		// Three admits more than a window ago
		old := float64(time.Now().Add(-61 * time.Second).UnixMilli())
		for i := 0; i < 3; i++ {
			mr.ZAdd("rate_limit:client-a", old, fmt.Sprintf("old:%d", i))
		}

		res := limiter.Check(ctx, "client-a", 3, time.Minute)
		assert.True(t, res.Allowed)
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter, _ := setupLimiter(t, nil)

		for i := 0; i < 3; i++ {
			limiter.Check(ctx, "client-a", 3, time.Minute)
		}

		res := limiter.Check(ctx, "client-b", 3, time.Minute)
		assert.True(t, res.Allowed)
	})

	t.Run("reset is a full window ahead", func(t *testing.T) {
		limiter, _ := setupLimiter(t, nil)

		before := time.Now().Add(time.Minute).UnixMilli()
		res := limiter.Check(ctx, "client-a", 3, time.Minute)
		after := time.Now().Add(time.Minute).UnixMilli()

		assert.GreaterOrEqual(t, res.ResetMs, before)
		assert.LessOrEqual(t, res.ResetMs, after)
	})
}

func TestLimiter_FailOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("backend down", func(t *testing.T) {
		limiter, mr := setupLimiter(t, nil)
		mr.Close()

		res := limiter.Check(ctx, "client-a", 3, time.Minute)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3, res.Remaining)
	})

	t.Run("disabled", func(t *testing.T) {
		limiter, _ := setupLimiter(t, &Config{DefaultLimit: 3, DefaultWindow: time.Minute, Enabled: false})

		res := limiter.Check(ctx, "client-a", 3, time.Minute)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3, res.Remaining)
	})

	t.Run("fail-open does not count rejections", func(t *testing.T) {
		limiter, mr := setupLimiter(t, nil)
		mr.Close()

		limiter.Check(ctx, "client-a", 0, time.Minute)
		assert.Equal(t, int64(0), limiter.Rejections())
	})
}

func TestLimiter_HTTPMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("sets rate limit headers", func(t *testing.T) {
		limiter, _ := setupLimiter(t, &Config{DefaultLimit: 2, DefaultWindow: time.Minute, Enabled: true})
		wrapped := limiter.HTTPMiddleware(ClientRouteKey)(handler)

		req := httptest.NewRequest(http.MethodPost, "/api/records", nil)
		req.Header.Set("X-Client-ID", "tester")
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("answers 429 over the limit", func(t *testing.T) {
		limiter, _ := setupLimiter(t, &Config{DefaultLimit: 1, DefaultWindow: time.Minute, Enabled: true})
		wrapped := limiter.HTTPMiddleware(ClientRouteKey)(handler)

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/records", nil)
			req.Header.Set("X-Client-ID", "tester")
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			if i == 0 {
				assert.Equal(t, http.StatusOK, rec.Code)
			} else {
				assert.Equal(t, http.StatusTooManyRequests, rec.Code)
				assert.Equal(t, "60", rec.Header().Get("Retry-After"))
			}
		}
	})

	t.Run("empty key allows the request", func(t *testing.T) {
		limiter, _ := setupLimiter(t, &Config{DefaultLimit: 1, DefaultWindow: time.Minute, Enabled: true})
		wrapped := limiter.HTTPMiddleware(func(*http.Request) string { return "" })(handler)

		for i := 0; i < 3; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/records", nil)
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestKeyFuncs(t *testing.T) {
	t.Run("client route key prefers client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
		req.Header.Set("X-Client-ID", "svc-1")
		assert.Equal(t, "svc-1:GET:/api/records", ClientRouteKey(req))
	})

	t.Run("client route key falls back to ip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1")
		assert.Equal(t, "ip:10.0.0.1:GET:/api/records", ClientRouteKey(req))
	})

	t.Run("endpoint key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/records/3", nil)
		assert.Equal(t, "endpoint:DELETE:/api/records/3", EndpointBasedKey(req))
	})
}
