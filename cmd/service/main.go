package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-search/internal/app"
	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/config"
	httphandler "github.com/kjstillabower/weather-search/internal/http"
	"github.com/kjstillabower/weather-search/internal/observability"
	"github.com/kjstillabower/weather-search/internal/recent"
	"github.com/kjstillabower/weather-search/internal/refresh"
	"github.com/kjstillabower/weather-search/internal/storage"
	"github.com/kjstillabower/weather-search/internal/traffic"
	"github.com/kjstillabower/weather-search/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded", zap.String("env", cfg.Env), zap.String("storage_backend", cfg.StorageBackend))

	startCtx, startCancel := context.WithTimeout(context.Background(), 10*time.Second)
	backend, err := storage.Open(startCtx, storageOptions(cfg))
	if err != nil {
		startCancel()
		logger.Fatal("storage", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	store := recent.NewStore(backend, cfg.StorageBackend, cfg.RecentMaxEntries, logger)
	if cfg.ClearOnStart {
		if err := store.Clear(startCtx); err != nil {
			logger.Warn("clear recent cities on start", zap.Error(err))
		}
	} else if list, last, err := store.Load(startCtx); err != nil {
		logger.Warn("load recent cities", zap.Error(err))
	} else {
		logger.Info("recent cities loaded", zap.Int("count", len(list)), zap.String("last_city", last))
	}

	weatherClient, err := newWeatherClient(cfg)
	if err != nil {
		startCancel()
		logger.Fatal("weather client", zap.Error(err))
	}
	if v, ok := weatherClient.(client.KeyValidator); ok {
		if err := v.ValidateAPIKey(startCtx); err != nil {
			logger.Warn("weather API key validation failed", zap.Error(err))
		}
	}
	startCancel()
	if cfg.BreakerEnabled {
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}

	session := app.NewSession(weatherClient, store, app.Config{
		MinLoadingVisible: cfg.MinLoadingVisible,
		DelayOnFailure:    cfg.DelayOnFailure,
	}, logger)

	var refresher *refresh.Refresher
	if cfg.RefreshSchedule != "" {
		refresher, err = refresh.New(session, cfg.RefreshSchedule, cfg.RequestTimeout, logger)
		if err != nil {
			logger.Fatal("refresh", zap.Error(err))
		}
		refresher.Start()
	}

	tracker := traffic.NewTracker()
	healthConfig := &httphandler.HealthConfig{
		Window:     cfg.HealthWindow,
		FailurePct: cfg.HealthFailurePct,
	}
	if p, ok := backend.(storage.Pinger); ok {
		healthConfig.StoragePing = p.Ping
	}
	bounds := validation.Bounds{MinLen: cfg.QueryMinLength, MaxLen: cfg.QueryMaxLength}
	handler := httphandler.NewHandler(session, tracker, bounds, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, logger, httphandler.RouterOptions{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	if refresher != nil {
		if err := refresher.Stop(waitCtx); err != nil {
			logger.Warn("scheduled refresh still running", zap.Error(err))
		}
	}
	if err := session.Drain(waitCtx); err != nil {
		logger.Warn("loading timers not drained", zap.Error(err))
	}

	if err := backend.Close(); err != nil {
		logger.Error("storage close", zap.Error(err))
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// storageOptions maps configuration onto the backend options.
func storageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Backend:    cfg.StorageBackend,
		SQLitePath: cfg.SQLitePath,
		Memcached: storage.MemcachedOptions{
			Addrs:        cfg.MemcachedAddrs,
			Timeout:      cfg.MemcachedTimeout,
			MaxIdleConns: cfg.MemcachedMaxIdleConns,
		},
		Redis: storage.RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		},
	}
}

// newWeatherClient builds the provider client, wrapped in a circuit breaker when enabled.
func newWeatherClient(cfg *config.Config) (client.WeatherClient, error) {
	c, err := client.NewOpenWeatherClientWithOptions(cfg.WeatherAPIKey, cfg.WeatherAPIURL, client.Options{
		Timeout:        cfg.WeatherAPITimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
	})
	if err != nil {
		return nil, err
	}
	if !cfg.BreakerEnabled {
		return c, nil
	}
	return client.NewBreakerClient("weather_api", client.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Interval:         cfg.BreakerInterval,
		Timeout:          cfg.BreakerTimeout,
	}, c), nil
}
