package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/video-service/internal/config"
)

// Connect returns a pinged client, or nil when no address is configured.
func Connect(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}
