//go:build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-search/internal/storage"
)

// IntegrationTimeout bounds each live provider call.
const IntegrationTimeout = 5 * time.Second

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey         string
	APIURL         string
	StorageBackend string // memory, sqlite, memcached or redis
	MemcachedAddr  string
	RedisAddr      string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		APIKey:         apiKey,
		APIURL:         envOr("WEATHER_API_URL", "https://api.openweathermap.org/data/2.5/weather"),
		StorageBackend: envOr("INTEGRATION_STORAGE_BACKEND", storage.BackendMemory),
		MemcachedAddr:  envOr("MEMCACHED_ADDRS", "localhost:11211"),
		RedisAddr:      envOr("REDIS_ADDR", "localhost:6379"),
	}
}

// OpenIntegrationStore opens the configured backend, falling back to memory when
// it is unreachable. The store is closed when the test ends.
func OpenIntegrationStore(t *testing.T, cfg IntegrationTestConfig) storage.Store {
	t.Helper()
	ctx := context.Background()
	opts := storage.Options{
		Backend:    cfg.StorageBackend,
		SQLitePath: t.TempDir() + "/integration.db",
		Memcached:  storage.MemcachedOptions{Addrs: cfg.MemcachedAddr, Timeout: 500 * time.Millisecond, MaxIdleConns: 2},
		Redis:      storage.RedisOptions{Addr: cfg.RedisAddr, KeyPrefix: "weather-search-it:"},
	}
	s, err := storage.Open(ctx, opts)
	if err == nil {
		if p, ok := s.(storage.Pinger); ok {
			err = p.Ping(ctx)
		}
	}
	if err != nil {
		t.Logf("%s storage not available (%v), using memory", cfg.StorageBackend, err)
		if s != nil {
			_ = s.Close()
		}
		s = storage.NewMemoryStore()
	} else {
		t.Logf("using %s storage", cfg.StorageBackend)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
