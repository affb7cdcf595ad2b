package data

import (
	"context"
	"sync"
	"time"

	"github.com/leadvalidator/leadvalidator/internal/core"
)

type memoryCacheEntry struct {
	isCatchAll bool
	expiresAt  time.Time
}

// MemoryDomainCache is an in-process catch-all verdict cache used when no
// Redis address is configured. Verdicts do not survive a restart.
type MemoryDomainCache struct {
	mu           sync.Mutex
	entries      map[string]memoryCacheEntry
	timeProvider TimeProvider
}

// NewMemoryDomainCache creates an empty in-process cache.
func NewMemoryDomainCache(tp TimeProvider) *MemoryDomainCache {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &MemoryDomainCache{
		entries:      make(map[string]memoryCacheEntry),
		timeProvider: tp,
	}
}

var _ core.DomainCache = (*MemoryDomainCache)(nil)

// Get returns the cached verdict for a domain. An expired entry is treated as
// absent and dropped.
func (c *MemoryDomainCache) Get(_ context.Context, domain string) (isCatchAll, found bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[domain]
	if !ok {
		return false, false, nil
	}
	if c.timeProvider.Now().After(entry.expiresAt) {
		delete(c.entries, domain)
		return false, false, nil
	}
	return entry.isCatchAll, true, nil
}

// Put stores a verdict for a domain with the given TTL.
func (c *MemoryDomainCache) Put(_ context.Context, domain string, isCatchAll bool, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[domain] = memoryCacheEntry{
		isCatchAll: isCatchAll,
		expiresAt:  c.timeProvider.Now().Add(ttl),
	}
	return nil
}
