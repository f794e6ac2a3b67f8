package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leadgen/backend/internal/domain/lead"
	"github.com/redis/go-redis/v9"
)

const fetchCachePrefix = "leadgen:fetch:"

// FetchCache stores a source's fetched batch keyed by collection window so a
// re-run inside the source's publish cadence can skip the live fetch. Cache
// misses and decode failures are soft: the pipeline just fetches live.
type FetchCache struct {
	client *redis.Client
}

// NewFetchCache creates a Redis-backed fetch cache
func NewFetchCache(client *redis.Client) *FetchCache {
	return &FetchCache{client: client}
}

func fetchKey(sourceName string, window lead.Window) string {
	return fmt.Sprintf("%s%s|%s|%s",
		fetchCachePrefix,
		sourceName,
		window.Start.UTC().Format("2006-01-02"),
		window.End.UTC().Format("2006-01-02"),
	)
}

// Get returns the cached batch for the source and window, if present
func (c *FetchCache) Get(ctx context.Context, sourceName string, window lead.Window) ([]lead.RawRecord, bool, error) {
	payload, err := c.client.Get(ctx, fetchKey(sourceName, window)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read fetch cache: %w", err)
	}

	var records []lead.RawRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		// Stale or corrupt entry, treat as a miss
		return nil, false, nil
	}
	return records, true, nil
}

// Put stores the batch for the source and window with the given TTL
func (c *FetchCache) Put(ctx context.Context, sourceName string, window lead.Window, records []lead.RawRecord, ttl time.Duration) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode fetch cache entry: %w", err)
	}
	if err := c.client.Set(ctx, fetchKey(sourceName, window), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write fetch cache: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *FetchCache) Close() error {
	return c.client.Close()
}
