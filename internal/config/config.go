package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	Env      string
	LogLevel string

	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration

	MinLoadingVisible time.Duration
	DelayOnFailure    bool

	RecentMaxEntries int

	StorageBackend        string // sqlite, memory, memcached or redis
	ClearOnStart          bool
	SQLitePath            string
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisKeyPrefix        string

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration

	RefreshSchedule string

	QueryMinLength int
	QueryMaxLength int

	HealthWindow     time.Duration
	HealthFailurePct int

	ShutdownTimeout time.Duration
	InFlightTimeout time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Loading struct {
		MinVisible     string `yaml:"min_visible"`
		DelayOnFailure *bool  `yaml:"delay_on_failure"`
	} `yaml:"loading"`

	Recent struct {
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"recent"`

	Storage struct {
		Backend      string `yaml:"backend"`
		ClearOnStart bool   `yaml:"clear_on_start"`
		SQLite       struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr      string `yaml:"addr"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold uint32 `yaml:"failure_threshold"`
			Interval         string `yaml:"interval"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Refresh struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"refresh"`

	Validation struct {
		QueryMinLength int `yaml:"query_min_length"`
		QueryMaxLength int `yaml:"query_max_length"`
	} `yaml:"validation"`

	Health struct {
		Window     string `yaml:"window"`
		FailurePct int    `yaml:"failure_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// envOverrides are read after .env is applied. Unset fields leave the YAML value alone.
type envOverrides struct {
	EnvName        string `envconfig:"ENV_NAME" default:"dev"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	WeatherAPIKey  string `envconfig:"WEATHER_API_KEY"`
	ServerPort     string `envconfig:"SERVER_PORT"`
	StorageBackend string `envconfig:"STORAGE_BACKEND"`
	SQLitePath     string `envconfig:"SQLITE_PATH"`
	MemcachedAddrs string `envconfig:"MEMCACHED_ADDRS"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
}

// Load reads configuration rooted at the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads dir/.env (optional), then dir/config/{ENV_NAME}.yaml (default dev)
// and dir/config/secrets.yaml. The API key comes from WEATHER_API_KEY or the secrets file.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if env.EnvName == "" {
		env.EnvName = "dev"
	}

	configPath := filepath.Join(dir, "config", env.EnvName+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{Env: env.EnvName, LogLevel: env.LogLevel}

	cfg.ServerPort = firstNonEmpty(env.ServerPort, fc.Server.Port, "8080")

	cfg.WeatherAPIKey = strings.TrimSpace(env.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}

	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.MinLoadingVisible = parseDurationOrZero(fc.Loading.MinVisible, time.Second)
	cfg.DelayOnFailure = true
	if fc.Loading.DelayOnFailure != nil {
		cfg.DelayOnFailure = *fc.Loading.DelayOnFailure
	}

	cfg.RecentMaxEntries = fc.Recent.MaxEntries
	if cfg.RecentMaxEntries <= 0 {
		cfg.RecentMaxEntries = 5
	}

	cfg.StorageBackend = strings.ToLower(firstNonEmpty(env.StorageBackend, fc.Storage.Backend, "sqlite"))
	cfg.ClearOnStart = fc.Storage.ClearOnStart
	cfg.SQLitePath = firstNonEmpty(env.SQLitePath, fc.Storage.SQLite.Path, "weather-search.db")
	cfg.MemcachedAddrs = firstNonEmpty(env.MemcachedAddrs, fc.Storage.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Storage.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Storage.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = firstNonEmpty(env.RedisAddr, fc.Storage.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = env.RedisPassword
	cfg.RedisDB = fc.Storage.Redis.DB
	cfg.RedisKeyPrefix = firstNonEmpty(fc.Storage.Redis.KeyPrefix, "weather-search:")

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.BreakerEnabled = cb.Enabled
	cfg.BreakerFailureThreshold = cb.FailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerInterval = parseDuration(cb.Interval, 30*time.Second)
	cfg.BreakerTimeout = parseDuration(cb.Timeout, 10*time.Second)

	cfg.RefreshSchedule = strings.TrimSpace(fc.Refresh.Schedule)

	cfg.QueryMinLength = fc.Validation.QueryMinLength
	if cfg.QueryMinLength <= 0 {
		cfg.QueryMinLength = 1
	}
	cfg.QueryMaxLength = fc.Validation.QueryMaxLength
	if cfg.QueryMaxLength <= 0 {
		cfg.QueryMaxLength = 100
	}

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.HealthFailurePct = fc.Health.FailurePct
	if cfg.HealthFailurePct <= 0 {
		cfg.HealthFailurePct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses s, falling back to defaultVal when s is empty, invalid or not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses s, falling back to defaultVal only when s is empty or invalid.
// Zero and negative values are returned as-is for the caller to validate.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks cross-field constraints. RequestTimeout is raised to exceed
// WeatherAPITimeout so a single attempt can always complete.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.MinLoadingVisible < 0 {
		return fmt.Errorf("loading.min_visible must not be negative")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.QueryMinLength > cfg.QueryMaxLength {
		return fmt.Errorf("validation.query_min_length %d exceeds query_max_length %d", cfg.QueryMinLength, cfg.QueryMaxLength)
	}
	switch cfg.StorageBackend {
	case "sqlite", "memory", "memcached", "redis":
	default:
		return fmt.Errorf("storage.backend must be sqlite, memory, memcached or redis, got %q", cfg.StorageBackend)
	}
	return nil
}
