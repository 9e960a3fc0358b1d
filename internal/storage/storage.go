package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store persists small named values, the server-side stand-in for browser local storage.
// Get returns (nil, false, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Pinger is implemented by backends with a reachability check, used by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Options selects and configures a backend. Only the fields of the chosen backend are read.
type Options struct {
	Backend string

	SQLitePath string

	Memcached MemcachedOptions
	Redis     RedisOptions
}

// Open constructs the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite, "":
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case BackendMemcached:
		return NewMemcachedStore(opts.Memcached)
	case BackendRedis:
		return NewRedisStore(ctx, opts.Redis)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}
