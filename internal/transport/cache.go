package transport

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	locationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunkdrive_location_cache_hits_total",
		Help: "Resolved chunk locations served from cache.",
	})
	locationCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunkdrive_location_cache_misses_total",
		Help: "Chunk location lookups that had to ask the transport.",
	})
)

// locationCache keeps resolved attachment URLs for less than their expiry.
type locationCache struct {
	cache *expirable.LRU[string, string]
}

func newLocationCache(size int, ttl time.Duration) *locationCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &locationCache{cache: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *locationCache) get(handle string) (string, bool) {
	if c == nil {
		return "", false
	}
	url, ok := c.cache.Get(handle)
	if ok {
		locationCacheHits.Inc()
		return url, true
	}
	locationCacheMisses.Inc()
	return "", false
}

func (c *locationCache) set(handle, url string) {
	if c != nil {
		c.cache.Add(handle, url)
	}
}

func (c *locationCache) forget(handle string) {
	if c != nil {
		c.cache.Remove(handle)
	}
}
