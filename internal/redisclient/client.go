package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_key.lua
var reserveKeyScript string

//go:embed scripts/release_key.lua
var releaseKeyScript string

// Key reservation states returned by ReserveKey
const (
	StateFresh    = 0
	StateDone     = 1
	StateInFlight = 2
)

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveKeyScript),
		releaseScript: redis.NewScript(releaseKeyScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idemKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// ReserveKey atomically reserves an idempotency key using a Lua script.
// Returns the key state plus the stored result when the state is StateDone.
func (c *Client) ReserveKey(ctx context.Context, key string, ttl time.Duration) (int, string, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{idemKey(key)}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, "", fmt.Errorf("reserve key script failed: %w", err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return 0, "", fmt.Errorf("unexpected script result type")
	}

	state, ok := parts[0].(int64)
	if !ok {
		return 0, "", fmt.Errorf("unexpected script state type")
	}
	stored, _ := parts[1].(string)

	return int(state), stored, nil
}

// CompleteKey marks a reserved key as done and stores the result snapshot
// for the retention window.
func (c *Client) CompleteKey(ctx context.Context, key, result string, ttl time.Duration) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, idemKey(key), "state", "done", "result", result)
	pipe.PExpire(ctx, idemKey(key), ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// ReleaseKey drops an in-flight reservation so the caller may retry.
// Completed keys are left untouched.
func (c *Client) ReleaseKey(ctx context.Context, key string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{idemKey(key)}).Result()
	if err != nil {
		return fmt.Errorf("release key script failed: %w", err)
	}
	return nil
}
