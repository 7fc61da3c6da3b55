// Package redis holds the optional Redis backends: the per-day streak guard
// and the pub/sub transport used by the event bus. Redis is never the source
// of truth; every caller treats an error here as "unknown" and carries on.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/learnhub/pkg/circuitbreaker"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// URL is a redis:// connection string, e.g. redis://:secret@localhost:6379/0.
	URL string

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration
}

// DefaultConfig returns the defaults applied to zero fields.
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379/0",
		PoolSize:     10,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

// Options converts the config into go-redis options.
func (c Config) Options() (*redis.Options, error) {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	opts.PoolSize = orDefault(c.PoolSize, def.PoolSize)
	opts.DialTimeout = orDefault(c.DialTimeout, def.DialTimeout)
	opts.ReadTimeout = orDefault(c.ReadTimeout, def.ReadTimeout)
	opts.WriteTimeout = orDefault(c.WriteTimeout, def.WriteTimeout)
	opts.MaxRetries = 1
	return opts, nil
}

func orDefault[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheConnection is returned when Redis cannot be reached at start-up.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY PREFIXES
// ══════════════════════════════════════════════════════════════════════════════

const (
	// PrefixStreakDay namespaces the per-day activity markers.
	PrefixStreakDay = "streak:day:"

	// PrefixPubSub namespaces event bus channels.
	PrefixPubSub = "pubsub:"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client wraps a go-redis client behind a circuit breaker.
type Client struct {
	rdb     *redis.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewClient connects and pings Redis. The breaker logs its transitions.
func NewClient(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return Wrap(rdb, circuitbreaker.RedisBreaker(onBreakerChange(log))), nil
}

// Wrap builds a Client around an existing go-redis client. A nil breaker
// gets the Redis defaults.
func Wrap(rdb *redis.Client, breaker *circuitbreaker.CircuitBreaker) *Client {
	if breaker == nil {
		breaker = circuitbreaker.RedisBreaker(nil)
	}
	return &Client{rdb: rdb, breaker: breaker}
}

func onBreakerChange(log *logger.Logger) func(name string, from, to circuitbreaker.State) {
	if log == nil {
		return nil
	}
	return func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.Component(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
}

// Raw returns the underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable. It bypasses the breaker so readiness
// reflects the real backend state.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Do runs fn through the circuit breaker.
func (c *Client) Do(ctx context.Context, fn func(ctx context.Context, rdb *redis.Client) error) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return fn(ctx, c.rdb)
	})
}
