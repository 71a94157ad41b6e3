package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// localCache 基于 golang-lru 的本地缓存，逐项过期
type localCache struct {
	config LocalConfig
	lru    *lru.Cache[string, cacheItem]
}

// cacheItem 缓存项
type cacheItem struct {
	value      interface{}
	expiration time.Time
}

func (i cacheItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultLocalConfig().MaxSize
	}
	l, _ := lru.New[string, cacheItem](config.MaxSize)
	return &localCache{config: config, lru: l}
}

func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	item, ok := lc.lru.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(time.Now()) {
		lc.lru.Remove(key)
		return nil, false
	}
	return item.value, true
}

func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = lc.config.DefaultExpiration
	}
	item := cacheItem{value: value}
	if expiration > 0 {
		item.expiration = time.Now().Add(expiration)
	}
	lc.lru.Add(key, item)
	return nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.lru.Remove(key)
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.Get(ctx, key)
	return ok
}

func (lc *localCache) Clear(ctx context.Context) error {
	lc.lru.Purge()
	return nil
}

func (lc *localCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	item, ok := lc.lru.Get(key)
	if !ok {
		return nil, 0, false
	}
	now := time.Now()
	if item.expired(now) {
		lc.lru.Remove(key)
		return nil, 0, false
	}
	var ttl time.Duration
	if !item.expiration.IsZero() {
		ttl = item.expiration.Sub(now)
	}
	return item.value, ttl, true
}

func (lc *localCache) Close() error {
	lc.lru.Purge()
	return nil
}
