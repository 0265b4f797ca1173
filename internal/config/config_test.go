package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Load()
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "./record_gateway.db", cfg.DatabasePath)
	assert.Equal(t, "", cfg.RedisAddress)
	assert.Equal(t, "", cfg.MongoURL)
	assert.Equal(t, "record_gateway", cfg.MongoDatabase)
	assert.Equal(t, "100", cfg.RateLimitDefault)
	assert.Equal(t, "60s", cfg.RateLimitWindow)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDRESS", "localhost:6380")
	t.Setenv("MONGO_URL", "mongodb://localhost:27017")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "localhost:6380", cfg.RedisAddress)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURL)
}

func TestConfig_OptionalTiers(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		cfg := Load()
		assert.False(t, cfg.CacheEnabled())
		assert.False(t, cfg.AuditEnabled())
	})

	t.Run("enabled by presence", func(t *testing.T) {
		cfg := Load()
		cfg.RedisAddress = "localhost:6379"
		cfg.MongoURL = "mongodb://localhost:27017"
		assert.True(t, cfg.CacheEnabled())
		assert.True(t, cfg.AuditEnabled())
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("missing redis settings are not an error", func(t *testing.T) {
		cfg := validConfig()
		cfg.RedisAddress = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Port = "not-a-port"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid database type", func(t *testing.T) {
		cfg := validConfig()
		cfg.DatabaseType = "oracle"
		assert.Error(t, cfg.Validate())
	})

	t.Run("postgres requires host and db", func(t *testing.T) {
		cfg := validConfig()
		cfg.DatabaseType = "postgres"
		cfg.PostgresHost = ""
		assert.Error(t, cfg.Validate())

		cfg = validConfig()
		cfg.DatabaseType = "postgres"
		cfg.PostgresDB = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid redis db", func(t *testing.T) {
		cfg := validConfig()
		cfg.RedisAddress = "localhost:6379"
		cfg.RedisDB = "16"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid rate limit window", func(t *testing.T) {
		cfg := validConfig()
		cfg.RedisAddress = "localhost:6379"
		cfg.RateLimitWindow = "soon"
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid cache ttl", func(t *testing.T) {
		cfg := validConfig()
		cfg.RedisAddress = "localhost:6379"
		cfg.CacheTTL = "forever"
		assert.Error(t, cfg.Validate())
	})
}
