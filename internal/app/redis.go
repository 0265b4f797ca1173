package app

import (
	"context"
	"strconv"
	"time"

	"record-gateway/internal/cache"
	"record-gateway/internal/common/logging"
	"record-gateway/internal/ratelimit"
	"record-gateway/internal/redis"
	"record-gateway/internal/service"
)

func (app *App) initializeRedis(ctx context.Context) error {
	redisDB, _ := strconv.Atoi(app.Config.RedisDB)
	poolSize, _ := strconv.Atoi(app.Config.RedisPoolSize)

	app.RedisClient = redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       redisDB,
		PoolSize: poolSize,
	})

	if err := service.Initialize(ctx, app.RedisClient, service.TierOptional); err != nil {
		return err
	}

	if !app.RedisClient.Enabled() {
		app.Logger.Info("Redis: not configured (caching and rate limiting disabled)")
		app.Cache = cache.NewDisabledStore()
		app.Limiter = ratelimit.NewLimiter(app.RedisClient, &ratelimit.Config{Enabled: false})
		return nil
	}

	app.Cache = cache.NewRedisStore(app.RedisClient, "cache:")

	window, err := time.ParseDuration(app.Config.RateLimitWindow)
	if err != nil || window <= 0 {
		window = time.Minute
	}
	limit := atoiDefault(app.Config.RateLimitDefault, 100)

	app.Limiter = ratelimit.NewLimiter(app.RedisClient, &ratelimit.Config{
		DefaultLimit:  limit,
		DefaultWindow: window,
		Enabled:       true,
	})

	app.Logger.Info("Rate limiting: enabled",
		logging.Int("limit", limit),
		logging.Duration("window", window),
	)
	return nil
}
