// Package persistence selects the key-value backend engine state is saved to.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/domain"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/persistence/memory"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/persistence/redis"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/persistence/sqlite"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config contains persistence settings.
type Config struct {
	Backend          string        `env:"PERSISTENCE_BACKEND" envDefault:"memory"`
	SQLitePath       string        `env:"SQLITE_PATH"         envDefault:"data/engine.db"`
	RedisURL         string        `env:"REDIS_URL"           envDefault:"redis://localhost:6379/0"`
	RedisKeyPrefix   string        `env:"REDIS_KEY_PREFIX"    envDefault:"engine:"`
	AutosaveInterval time.Duration `env:"AUTOSAVE_INTERVAL"   envDefault:"30s"`
}

// Backend is a Persistence that owns resources.
type Backend interface {
	domain.Persistence
	Close() error
}

type memoryBackend struct {
	*memory.Store
}

func (memoryBackend) Close() error { return nil }

// Open returns the configured backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return memoryBackend{memory.New()}, nil
	case BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := redis.Open(ctx, cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}
