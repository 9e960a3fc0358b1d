package client

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/observability"
)

// BreakerConfig configures the circuit breaker around the weather API.
type BreakerConfig struct {
	FailureThreshold uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// BreakerClient decorates a WeatherClient with a circuit breaker. Only upstream
// health failures count toward tripping; a city the provider does not know is a
// valid answer, not an outage.
type BreakerClient struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	wrapped WeatherClient
}

func NewBreakerClient(name string, cfg BreakerConfig, wrapped WeatherClient) *BreakerClient {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var le *LookupError
			return errors.As(err, &le) && le.NotFound()
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.RecordBreakerTransition(name, from.String(), to.String())
		},
	}
	observability.RecordBreakerTransition(name, "", gobreaker.StateClosed.String())
	return &BreakerClient{
		name:    name,
		cb:      gobreaker.NewCircuitBreaker(settings),
		wrapped: wrapped,
	}
}

func (b *BreakerClient) Lookup(ctx context.Context, city string) (models.WeatherReading, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.wrapped.Lookup(ctx, city)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.WeatherReading{}, newLookupError(city, ErrBreakerOpen)
		}
		return models.WeatherReading{}, newLookupError(city, err)
	}
	reading, ok := result.(models.WeatherReading)
	if !ok {
		return models.WeatherReading{}, newLookupError(city, ErrMalformedResponse)
	}
	return reading, nil
}

// ValidateAPIKey delegates to the wrapped client when it supports validation.
func (b *BreakerClient) ValidateAPIKey(ctx context.Context) error {
	if v, ok := b.wrapped.(KeyValidator); ok {
		return v.ValidateAPIKey(ctx)
	}
	return nil
}

// State reports the breaker state name.
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}
