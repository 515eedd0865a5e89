package wiki

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const pageListCacheKey = "pages/all"

// ListCache caches the full page listing. Implementations must be safe for
// concurrent use; the Store invalidates the entry on every mutation.
type ListCache interface {
	Get() ([]Page, bool)
	Set(pages []Page)
	Invalidate()
}

// TTLListCache holds the page listing under a single sentinel key with an
// absolute expiration from the time it was populated.
type TTLListCache struct {
	cache *gocache.Cache
}

var _ ListCache = (*TTLListCache)(nil)

// NewTTLListCache constructs a page-list cache with the provided time to live.
func NewTTLListCache(ttl time.Duration) *TTLListCache {
	return &TTLListCache{cache: gocache.New(ttl, ttl)}
}

// Get returns the cached listing when present and unexpired.
func (c *TTLListCache) Get() ([]Page, bool) {
	value, found := c.cache.Get(pageListCacheKey)
	if !found {
		return nil, false
	}

	pages, ok := value.([]Page)
	if !ok {
		return nil, false
	}

	return pages, true
}

// Set stores the listing with the cache's default expiration.
func (c *TTLListCache) Set(pages []Page) {
	c.cache.Set(pageListCacheKey, pages, gocache.DefaultExpiration)
}

// Invalidate removes the cached listing so the next read goes to storage.
func (c *TTLListCache) Invalidate() {
	c.cache.Delete(pageListCacheKey)
}

// NoopListCache never caches anything. Useful in tests that must observe
// storage directly.
type NoopListCache struct{}

var _ ListCache = (*NoopListCache)(nil)

// Get always reports a miss.
func (NoopListCache) Get() ([]Page, bool) { return nil, false }

// Set discards the listing.
func (NoopListCache) Set([]Page) {}

// Invalidate does nothing.
func (NoopListCache) Invalidate() {}
