package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 2 * time.Second

// RedisStore shares sessions across replicas. Redis errors read as a missing
// session, so an outage degrades to an empty cart rather than a failed
// request.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis session store requires a client")
	}
	return &RedisStore{client: client}, nil
}

func redisSessionKey(id string) string {
	return "storefront:session:" + id
}

func (r *RedisStore) Get(ctx context.Context, key string) (*Data, bool) {
	if key == "" {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	raw, err := r.client.Get(ctx, redisSessionKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	data := &Data{}
	if json.Unmarshal(raw, data) != nil {
		return nil, false
	}
	return data, true
}

func (r *RedisStore) Set(ctx context.Context, key string, data *Data, ttl time.Duration) {
	if key == "" || data == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	r.client.Set(ctx, redisSessionKey(key), raw, ttl)
}

func (r *RedisStore) Delete(ctx context.Context, key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	r.client.Del(ctx, redisSessionKey(key))
}

// Close is a no-op; the shared client is closed by whoever dialed it.
func (r *RedisStore) Close() error {
	return nil
}
