package session

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Provider string
	// Redis is required for the redis provider.
	Redis *redis.Client
}

func NewStore(cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported session store provider: %s", cfg.Provider)
	}
}
