package storage

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CacheValue is a rendered response body.
type CacheValue struct {
	Body        []byte
	ContentType string
}

// ResultCache keeps rendered images in memory, weighted by body size.
type ResultCache struct {
	cache *ristretto.Cache[string, CacheValue]
	ttl   time.Duration
}

type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

func NewResultCache(cfg CacheConfig) (*ResultCache, error) {
	cacheConfig := &ristretto.Config[string, CacheValue]{
		NumCounters: 1e7,     // number of keys to track frequency of (10M).
		MaxCost:     1 << 30, // maximum cost of cache (1GB).
		BufferItems: 64,      // number of keys per Get buffer.
	}
	if cfg.NumCounters > 0 {
		cacheConfig.NumCounters = cfg.NumCounters
	}
	if cfg.MaxCost > 0 {
		cacheConfig.MaxCost = cfg.MaxCost
	}
	if cfg.BufferItems > 0 {
		cacheConfig.BufferItems = cfg.BufferItems
	}

	cache, err := ristretto.NewCache(cacheConfig)
	if err != nil {
		return nil, err
	}
	return &ResultCache{cache: cache, ttl: cfg.TTL}, nil
}

func (r *ResultCache) Get(key string) (CacheValue, bool) {
	return r.cache.Get(key)
}

// Set stores value with the configured TTL. Ristretto admits entries
// asynchronously, so a Get right after Set may still miss.
func (r *ResultCache) Set(key string, value CacheValue) bool {
	return r.cache.SetWithTTL(key, value, int64(len(value.Body)), r.ttl)
}

// Wait blocks until buffered writes have been applied.
func (r *ResultCache) Wait() {
	r.cache.Wait()
}

func (r *ResultCache) Delete(key string) {
	r.cache.Del(key)
}

func (r *ResultCache) Close() {
	r.cache.Close()
}
