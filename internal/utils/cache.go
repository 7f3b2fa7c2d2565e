package utils

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// CacheItem 包装缓存数据和过期时间
type CacheItem struct {
	Data      interface{}
	ExpiresAt time.Time
}

// PageCache is a process-local LRU with per-key TTLs, used for rendered
// homepage data, feeds and tag clouds.
type PageCache struct {
	lruCache *lru.Cache[string, CacheItem]
}

var (
	cacheInstance *PageCache
	cacheOnce     sync.Once
)

// GetCache returns the shared cache.
func GetCache() *PageCache {
	cacheOnce.Do(func() {
		cacheInstance = NewPageCache(500)
	})
	return cacheInstance
}

func NewPageCache(size int) *PageCache {
	l, err := lru.New[string, CacheItem](size)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create LRU cache")
	}
	return &PageCache{lruCache: l}
}

func (c *PageCache) Set(key string, data interface{}, ttl time.Duration) {
	c.lruCache.Add(key, CacheItem{
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	})
}

// Get returns nil for missing or expired keys.
func (c *PageCache) Get(key string) interface{} {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return nil
	}
	return val.Data
}

func (c *PageCache) Delete(key string) {
	c.lruCache.Remove(key)
}

// DeletePrefix drops every key starting with prefix, e.g. "feed:".
func (c *PageCache) DeletePrefix(prefix string) {
	for _, k := range c.lruCache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lruCache.Remove(k)
		}
	}
}

func (c *PageCache) Purge() {
	c.lruCache.Purge()
}

// Remember returns the cached value for key or computes, stores and returns it.
// Errors are not cached.
func Remember[T any](c *PageCache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if v, ok := c.Get(key).(T); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}
