package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const memcachedKeyPrefix = "weather-search:"

// MemcachedOptions configures the memcached backend. Addrs is comma-separated.
type MemcachedOptions struct {
	Addrs        string
	Timeout      time.Duration
	MaxIdleConns int
}

// MemcachedStore keeps values in memcached with no expiration. Memcached may still
// evict under memory pressure; a missing key reads as an empty history.
type MemcachedStore struct {
	client *memcache.Client
}

func NewMemcachedStore(opts MemcachedOptions) (*MemcachedStore, error) {
	servers := parseAddrs(opts.Addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	}
	if opts.MaxIdleConns > 0 {
		client.MaxIdleConns = opts.MaxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := s.client.Get(memcachedKeyPrefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return item.Value, true, nil
}

func (s *MemcachedStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.Set(&memcache.Item{Key: memcachedKeyPrefix + key, Value: value})
}

func (s *MemcachedStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.client.Delete(memcachedKeyPrefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (s *MemcachedStore) Ping(ctx context.Context) error {
	return s.client.Ping()
}

func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
