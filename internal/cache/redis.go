package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDialTimeout = 5 * time.Second

// DialRedis opens and pings a client. The cache and the session store share
// the one client; its owner closes it.
func DialRedis(ctx context.Context, connectionString string) (*redis.Client, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to connect to redis: %w", err), client.Close())
	}
	return client, nil
}

// RedisProvider namespaces cache entries under storefront:cache: so they can
// share a database with sessions.
type RedisProvider struct {
	client *redis.Client
}

func NewRedisProvider(client *redis.Client) (*RedisProvider, error) {
	if client == nil {
		return nil, errors.New("redis cache provider requires a client")
	}
	return &RedisProvider{client: client}, nil
}

func (r *RedisProvider) key(key string) string {
	return "storefront:cache:" + key
}

func (r *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

// Add uses SET NX, so concurrent deliveries of one webhook race on Redis and
// exactly one wins.
func (r *RedisProvider) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.key(key), value, ttl).Result()
}

func (r *RedisProvider) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close is a no-op; the shared client is closed by whoever dialed it.
func (r *RedisProvider) Close() error {
	return nil
}
