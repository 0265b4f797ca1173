// Package redis wraps the go-redis client with the operations the gateway
// needs: string get/set with TTL for the cache layer and atomic sorted-set
// manipulation for the sliding-window rate limiter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"record-gateway/internal/service"
)

const opTimeout = 5 * time.Second

type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// Client is a long-lived shared handle to the Redis server, established once
// at startup and reused by every request.
type Client struct {
	rdb    *redis.Client
	config *Config
	state  service.State
	seq    atomic.Int64
}

// WindowResult is the outcome of one sliding-window evaluation
type WindowResult struct {
	Allowed bool
	// Count is the window cardinality before the current request was admitted
	Count int64
}

// NewClient creates a Redis client. The connection is not probed here; call
// Initialize to run the bounded connect-with-retry sequence.
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	c := &Client{config: config}

	if config.Address == "" {
		return c
	}

	c.rdb = redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			c.state.SetConnected(true)
			return nil
		},
	})

	return c
}

// Name implements service.Lifecycle
func (c *Client) Name() string { return "redis" }

// Enabled reports whether a Redis address was configured
func (c *Client) Enabled() bool { return c.config.Address != "" }

// Ready reports whether operations can be attempted without a round trip
func (c *Client) Ready() bool { return c.Enabled() && c.state.Connected() }

// Initialize pings the server with the default retry policy
func (c *Client) Initialize(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return service.ConnectWithRetry(ctx, c.Name(), service.DefaultRetry, func(ctx context.Context) error {
		return c.ping(ctx)
	})
}

// Shutdown closes the underlying connection pool
func (c *Client) Shutdown() error {
	if c.rdb == nil {
		return nil
	}
	c.state.SetConnected(false)
	return c.rdb.Close()
}

// Health probes the server and refreshes the liveness flag. A client
// that was never configured reports healthy: there is nothing to probe.
func (c *Client) Health() error {
	if !c.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return c.ping(ctx)
}

func (c *Client) ping(ctx context.Context) error {
	if c.rdb == nil {
		return fmt.Errorf("redis client is not configured")
	}
	err := c.rdb.Ping(ctx).Err()
	c.state.SetConnected(err == nil)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// observe tracks liveness from operation outcomes so later calls can
// short-circuit cheaply. A completed round trip (success or redis.Nil)
// marks the server reachable; a transport failure marks it unreachable.
// Caller-side cancellation says nothing about the server and leaves the
// flag untouched.
func (c *Client) observe(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		c.state.SetConnected(true)
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	c.state.SetConnected(false)
	return err
}

// SlidingWindow atomically expires window members older than now-window and
// reads the remaining cardinality, then admits the request if the cardinality
// is below limit. A member scored exactly at the window boundary still counts
// as inside the window. Admitted requests add a unique member and refresh the
// window's own expiry.
func (c *Client) SlidingWindow(ctx context.Context, key string, limit int, window time.Duration) (*WindowResult, error) {
	now := time.Now().UnixMilli()
	cutoff := now - window.Milliseconds()

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, c.observe(fmt.Errorf("failed to evaluate rate limit window: %w", err))
	}

	count := countCmd.Val()
	allowed := count < int64(limit)
	if allowed {
		member := fmt.Sprintf("%d:%d", now, c.seq.Add(1))
		pipe = c.rdb.TxPipeline()
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now), Member: member})
		pipe.PExpire(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, c.observe(fmt.Errorf("failed to admit request into window: %w", err))
		}
	}

	c.observe(nil)
	return &WindowResult{Allowed: allowed, Count: count}, nil
}

// Get retrieves a string value. A missing key returns found=false, nil error.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err := c.observe(err); err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

// Set stores a value with a TTL
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.observe(c.rdb.Set(ctx, key, value, ttl).Err())
}

// Delete removes one or more keys, ignoring missing keys
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.observe(c.rdb.Del(ctx, keys...).Err())
}

// Keys scans for keys matching pattern, up to limit (0 = no limit)
func (c *Client) Keys(ctx context.Context, pattern string, limit int) ([]string, error) {
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	if err := c.observe(iter.Err()); err != nil {
		return nil, err
	}
	return keys, nil
}

// FlushPrefix deletes every key matching prefix*
func (c *Client) FlushPrefix(ctx context.Context, prefix string) error {
	keys, err := c.Keys(ctx, prefix+"*", 0)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.observe(c.rdb.Del(ctx, keys...).Err())
}

// MemoryBytes reads used_memory from INFO. Best-effort: 0 when the server
// does not expose it.
func (c *Client) MemoryBytes(ctx context.Context) int64 {
	info, err := c.rdb.Info(ctx, "memory").Result()
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(info, "\n") {
		if rest, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err == nil {
				return n
			}
		}
	}
	return 0
}
