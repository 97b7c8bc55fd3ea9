package storage

import (
	"context"
	"sync"
	"time"
)

// refreshMargin is how long before expiry a cached URL stops being served,
// so callers never receive a URL about to lapse mid-use.
const refreshMargin = time.Minute

// URLCache memoizes signed URLs in front of any Store. Uploads pass
// through and invalidate the key they touch.
type URLCache struct {
	store      Store
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]cachedURL
}

type cachedURL struct {
	url     string
	expires time.Time
}

var _ Store = (*URLCache)(nil)

// NewURLCache wraps store with a cache. ttl is used when callers pass a
// non-positive TTL; zero falls back to one hour.
func NewURLCache(store Store, ttl time.Duration) *URLCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &URLCache{
		store:      store,
		defaultTTL: ttl,
		entries:    make(map[string]cachedURL),
	}
}

// Upload delegates to the underlying store and drops any cached URL for the
// key.
func (c *URLCache) Upload(ctx context.Context, localPath, remoteKey string) (string, error) {
	result, err := c.store.Upload(ctx, localPath, remoteKey)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	delete(c.entries, remoteKey)
	c.mu.Unlock()
	return result, nil
}

// SignedURL serves from cache while the previous signature has comfortably
// more than refreshMargin left, re-signing otherwise.
func (c *URLCache) SignedURL(ctx context.Context, remoteKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()

	c.mu.Lock()
	if entry, ok := c.entries[remoteKey]; ok && now.Before(entry.expires.Add(-refreshMargin)) {
		url := entry.url
		c.mu.Unlock()
		return url, nil
	}
	c.mu.Unlock()

	url, err := c.store.SignedURL(ctx, remoteKey, ttl)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[remoteKey] = cachedURL{url: url, expires: now.Add(ttl)}
	c.prune(now)
	c.mu.Unlock()
	return url, nil
}

// prune drops expired entries. Caller holds the lock.
func (c *URLCache) prune(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, key)
		}
	}
}
