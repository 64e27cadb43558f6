package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

var _ Cache = (*RedisCache)(nil)

// RedisCache shares rendered images between instances
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(options *redis.Options, prefix string) (*RedisCache, error) {
	client := redis.NewClient(options)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, utils.NewAppError(utils.ErrCodeCache, "Failed to connect to Redis", err.Error())
	}

	return &RedisCache{client: client, prefix: prefix}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, utils.NewAppError(utils.ErrCodeCache, "Redis get failed", err.Error())
	}
	return data, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return utils.NewAppError(utils.ErrCodeCache, "Redis set failed", err.Error())
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
