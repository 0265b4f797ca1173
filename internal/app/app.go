package app

import (
	"context"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"record-gateway/internal/audit"
	"record-gateway/internal/cache"
	"record-gateway/internal/common/logging"
	"record-gateway/internal/config"
	"record-gateway/internal/ratelimit"
	"record-gateway/internal/redis"
	"record-gateway/internal/repository"
	"record-gateway/internal/storage"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Storage     storage.Storage
	Cache       cache.Store
	Sink        audit.Sink
	Limiter     *ratelimit.Limiter
	Repo        *repository.RecordRepository
	RedisClient *redis.Client
	Logger      logging.Logger

	cron      *cron.Cron
	mongoSink *audit.MongoSink
}

// New creates an application instance. The relational store must come up
// or bootstrap fails; Redis and the audit store are optional and leave
// their features disabled when unreachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.String("component", "app")),
	}

	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(ctx); err != nil {
		return nil, err
	}

	if err := app.initializeAudit(ctx); err != nil {
		return nil, err
	}

	app.Repo = repository.NewRecordRepository(app.Storage, app.Cache, app.Sink, app.cacheTTL())
	app.startStatsReporter()

	return app, nil
}

func (app *App) cacheTTL() time.Duration {
	ttl, err := time.ParseDuration(app.Config.CacheTTL)
	if err != nil || ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}

// startStatsReporter logs an operational snapshot every minute. The tick
// also probes Redis so a backend that recovered after a transient outage
// is picked up again.
func (app *App) startStatsReporter() {
	app.cron = cron.New()

	_, err := app.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if app.RedisClient.Enabled() {
			if err := app.RedisClient.Health(); err != nil {
				app.Logger.Warn("redis health probe failed", logging.Err(err))
			}
		}

		pool := app.Storage.PoolStats()
		stats := app.Cache.Stats(ctx)

		app.Logger.Info("operational stats",
			logging.Int("pool_active", pool.Active),
			logging.Int("pool_idle", pool.Idle),
			logging.Int64("cache_hits", stats.Hits),
			logging.Int64("cache_misses", stats.Misses),
			logging.Int64("rate_limit_rejected", app.Limiter.Rejections()),
		)
	})
	if err != nil {
		app.Logger.Warn("failed to schedule stats reporter", logging.Err(err))
		return
	}

	app.cron.Start()
}

// Cleanup releases every held connection. Safe to call on a partially
// initialized app.
func (app *App) Cleanup() {
	if app.cron != nil {
		app.cron.Stop()
	}

	if app.mongoSink != nil {
		if err := app.mongoSink.Shutdown(); err != nil {
			app.Logger.Warn("audit shutdown failed", logging.Err(err))
		}
	}

	if app.RedisClient != nil {
		if err := app.RedisClient.Shutdown(); err != nil {
			app.Logger.Warn("redis shutdown failed", logging.Err(err))
		}
	}

	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			app.Logger.Warn("storage close failed", logging.Err(err))
		}
	}
}

func atoiDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
