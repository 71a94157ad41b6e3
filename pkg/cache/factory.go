package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewCache 创建缓存实例. client may be nil, in which case a redis cache dials
// config.RedisURL itself and owns the connection.
func NewCache(ctx context.Context, config Config, client *redis.Client, prefix string) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", "local":
		return NewLocalCache(config.Local), nil
	case "gocache":
		return NewGoCache(config.Local), nil
	case "redis":
		owned := false
		if client == nil {
			var err error
			if client, err = NewRedisClient(ctx, config.RedisURL); err != nil {
				return nil, err
			}
			owned = true
		}
		distributed := &redisCache{client: client, prefix: prefix, ownClient: owned}
		if config.Layered {
			local := config.Local
			if local.DefaultExpiration <= 0 || local.DefaultExpiration > time.Minute {
				local.DefaultExpiration = time.Minute
			}
			return NewLayeredCache(NewLocalCache(local), distributed, local.DefaultExpiration), nil
		}
		return distributed, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// layeredCache 分层缓存（本地缓存 + 分布式缓存）
type layeredCache struct {
	local           Cache
	distributed     Cache
	localExpiration time.Duration
}

// NewLayeredCache 创建分层缓存
func NewLayeredCache(local, distributed Cache, localExpiration time.Duration) Cache {
	return &layeredCache{local: local, distributed: distributed, localExpiration: localExpiration}
}

// Get 从本地缓存获取，如果没有则从分布式缓存获取并回填本地缓存
func (lc *layeredCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if value, exists := lc.local.Get(ctx, key); exists {
		return value, true
	}
	if value, exists := lc.distributed.Get(ctx, key); exists {
		_ = lc.local.Set(ctx, key, value, lc.localExpiration)
		return value, true
	}
	return nil, false
}

// Set 同时设置到本地和分布式缓存
func (lc *layeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.distributed.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	local := lc.localExpiration
	if expiration > 0 && expiration < local {
		local = expiration
	}
	return lc.local.Set(ctx, key, value, local)
}

func (lc *layeredCache) Delete(ctx context.Context, key string) error {
	if err := lc.local.Delete(ctx, key); err != nil {
		return err
	}
	return lc.distributed.Delete(ctx, key)
}

func (lc *layeredCache) Exists(ctx context.Context, key string) bool {
	return lc.local.Exists(ctx, key) || lc.distributed.Exists(ctx, key)
}

func (lc *layeredCache) Clear(ctx context.Context) error {
	if err := lc.local.Clear(ctx); err != nil {
		return err
	}
	return lc.distributed.Clear(ctx)
}

// GetWithTTL reports the distributed TTL, which is authoritative.
func (lc *layeredCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	value, ttl, exists := lc.distributed.GetWithTTL(ctx, key)
	if !exists {
		return lc.local.GetWithTTL(ctx, key)
	}
	_ = lc.local.Set(ctx, key, value, lc.localExpiration)
	return value, ttl, true
}

func (lc *layeredCache) Close() error {
	if err := lc.local.Close(); err != nil {
		return err
	}
	return lc.distributed.Close()
}
