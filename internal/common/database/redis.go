// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"lead-engine/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the connection shared by the lead cache and the
// nurturing queue.
type RedisClient struct {
	Client *redis.Client
}

// RedisOptions builds the client options; the nurturing queue reuses them.
func RedisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	}
}

func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	return &RedisClient{Client: redis.NewClient(RedisOptions(cfg))}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}
