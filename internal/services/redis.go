package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tradecompass-core/internal/config"
	"tradecompass-core/internal/pkg/logger"
)

// NewRedisClient connects the shared persistence backend used by the cache
// and session services. Callers decide how to degrade when this fails; the
// workflow core must keep functioning without it.
func NewRedisClient(cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("Redis client connected",
		"url", cfg.URL,
		"pool_size", cfg.PoolSize)

	return client, nil
}
