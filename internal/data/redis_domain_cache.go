package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadvalidator/leadvalidator/internal/core"
)

const catchAllKeyPrefix = "leadvalidator:catchall:"

// RedisDomainCache stores catch-all verdicts in Redis so they survive
// restarts and are shared across replicas.
type RedisDomainCache struct {
	client redis.UniversalClient
}

// NewRedisDomainCache creates a cache backed by the given Redis client.
func NewRedisDomainCache(client redis.UniversalClient) *RedisDomainCache {
	return &RedisDomainCache{client: client}
}

var _ core.DomainCache = (*RedisDomainCache)(nil)

// Get returns the cached verdict for a domain. A missing or expired key
// reports found=false.
func (c *RedisDomainCache) Get(ctx context.Context, domain string) (isCatchAll, found bool, err error) {
	val, err := c.client.Get(ctx, catchAllKeyPrefix+domain).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get catch-all verdict for %s: %w", domain, err)
	}
	return val == "1", true, nil
}

// Put stores a verdict for a domain with the given TTL.
func (c *RedisDomainCache) Put(ctx context.Context, domain string, isCatchAll bool, ttl time.Duration) error {
	val := "0"
	if isCatchAll {
		val = "1"
	}
	if err := c.client.Set(ctx, catchAllKeyPrefix+domain, val, ttl).Err(); err != nil {
		return fmt.Errorf("store catch-all verdict for %s: %w", domain, err)
	}
	return nil
}
