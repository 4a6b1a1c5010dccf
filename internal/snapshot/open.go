package snapshot

import (
	"context"
	"fmt"
	"strings"
)

// Config selects a backend. Backend is one of memory, file, postgres, s3 or redis.
type Config struct {
	Backend     string
	Dir         string
	PostgresDSN string
	RedisURL    string
	S3          S3Config
	CacheSize   int // > 0 puts an LRU in front of the backend
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		st = NewMemoryStore()
	case "file":
		st, err = NewFileStore(cfg.Dir)
	case "postgres":
		st, err = NewPostgresStore(ctx, cfg.PostgresDSN)
	case "s3":
		st, err = NewS3Store(cfg.S3)
	case "redis":
		st, err = NewRedisStore(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s snapshot store: %w", cfg.Backend, err)
	}
	if cfg.CacheSize > 0 {
		cached, err := NewCachedStore(st, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		return cached, nil
	}
	return st, nil
}
