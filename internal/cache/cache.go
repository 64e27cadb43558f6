// File: internal/cache/cache.go
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// Cache stores rendered images by key
type Cache interface {
	// Get returns the value and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value; a ttl of 0 keeps it until evicted
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// New creates the cache selected by cfg.Type
func New(cfg *config.CacheConfig) (Cache, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil
	case "none":
		return NewNoopCache(), nil
	case "redis":
		options, err := redisOptions(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisCache(options, cfg.Redis.KeyPrefix)
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported cache type", cfg.Type)
	}
}

// redisOptions accepts either host:port or a redis:// URL
func redisOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		options, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid Redis URL", err.Error())
		}
		return options, nil
	}

	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}
