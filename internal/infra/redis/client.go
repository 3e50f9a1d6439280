package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client stores advisory session stop flags in Redis so cooperative
// cancellation is visible to every runner process.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	StopTTL  time.Duration `yaml:"stop_ttl"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.StopTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stopKey(sessionID string) string {
	return fmt.Sprintf("benchd:stopped:%s", sessionID)
}

// Set raises the stop flag. Returns false if it was already set, so a
// double stop is a no-op.
func (c *Client) Set(ctx context.Context, sessionID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, stopKey(sessionID), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// IsSet reports whether the stop flag is raised.
func (c *Client) IsSet(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, stopKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}

// Clear lowers the stop flag.
func (c *Client) Clear(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, stopKey(sessionID)).Err()
}
