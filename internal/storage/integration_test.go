//go:build integration
// +build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestMemcachedStore_Integration(t *testing.T) {
	addrs := os.Getenv("MEMCACHED_ADDRS")
	if addrs == "" {
		addrs = "localhost:11211"
	}
	s, err := NewMemcachedStore(MemcachedOptions{Addrs: addrs, Timeout: 500 * time.Millisecond, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("NewMemcachedStore() error = %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Skipf("memcached not reachable at %s: %v", addrs, err)
	}
	exerciseStore(t, s)
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, KeyPrefix: "weather-search-test:"})
	if err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	defer s.Close()
	exerciseStore(t, s)
}
