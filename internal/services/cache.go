package services

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/axellelanca/locashare/internal/models"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_redirect_cache_hits_total",
		Help: "Redirect lookups served from the in-process cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "locashare_redirect_cache_misses_total",
		Help: "Redirect lookups that went to the link store.",
	})
)

// LinkCache is an LRU of link metadata used on the redirect path. Click
// counters in cached entries are stale and must not be reported.
type LinkCache struct {
	cache *expirable.LRU[string, models.Link]
}

// NewLinkCache returns nil when size is not positive, and a nil cache is a
// valid always-miss cache.
func NewLinkCache(size int, ttl time.Duration) *LinkCache {
	if size <= 0 {
		return nil
	}
	return &LinkCache{cache: expirable.NewLRU[string, models.Link](size, nil, ttl)}
}

func (c *LinkCache) Get(code string) (models.Link, bool) {
	if c == nil {
		return models.Link{}, false
	}
	link, ok := c.cache.Get(code)
	if ok {
		cacheHitsTotal.Inc()
		return link, true
	}
	cacheMissesTotal.Inc()
	return models.Link{}, false
}

func (c *LinkCache) Set(link models.Link) {
	if c == nil {
		return
	}
	c.cache.Add(link.ShortCode, link)
}

func (c *LinkCache) Delete(code string) {
	if c == nil {
		return
	}
	c.cache.Remove(code)
}
