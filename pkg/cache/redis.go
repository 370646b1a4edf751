// Пакет cache предоставляет обёртку над Redis для кэширования статей
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss возвращается, когда ключа нет в кэше
var ErrCacheMiss = errors.New("cache miss")

// RedisClient оборачивает *redis.Client и явно сообщает о промахе кэша
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient создаёт клиент по адресу addr
func NewRedisClient(addr string) *RedisClient {
	return &RedisClient{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Ping проверяет соединение с Redis
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Set сохраняет value под ключом key на время expiration
func (r *RedisClient) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get возвращает значение по ключу или ErrCacheMiss, если ключа нет
func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Invalidate удаляет ключи одной командой DEL
func (r *RedisClient) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Close закрывает пул соединений
func (r *RedisClient) Close() error {
	return r.client.Close()
}
