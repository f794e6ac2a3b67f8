package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/leadgen/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Components bundles the cache-backed pipeline collaborators. FetchCache is
// nil when Redis is not configured; the pipeline then always fetches live.
type Components struct {
	RunLock    RunLock
	FetchCache *FetchCache
}

// NewComponents builds the run lock and fetch cache from configuration.
// Without Redis the run lock degrades to an in-process one, which is correct
// for single-instance deployments.
func NewComponents(cfg config.RedisConfig, logger *zap.Logger) (*Components, error) {
	if cfg.Host == "" {
		logger.Info("Redis not configured, using in-process run locks without a fetch cache")
		return &Components{RunLock: NewInMemoryRunLock()}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Components{
		RunLock:    NewRedisRunLock(client),
		FetchCache: NewFetchCache(client),
	}, nil
}

// Close releases the shared connection. The run lock and fetch cache share
// one client, so closing through the lock is sufficient.
func (c *Components) Close() error {
	return c.RunLock.Close()
}
