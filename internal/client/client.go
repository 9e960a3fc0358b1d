package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-search/internal/condition"
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/observability"
)

// WeatherClient fetches the current reading for a city. Every error returned by
// Lookup is a *LookupError.
type WeatherClient interface {
	Lookup(ctx context.Context, city string) (models.WeatherReading, error)
}

// KeyValidator is implemented by clients that can check their credentials upstream.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context) error
}

// Options configures an OpenWeatherClient. Zero values fall back to defaults.
type Options struct {
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	HTTPClient     *http.Client
}

// OpenWeatherClient calls the OpenWeather current-conditions endpoint.
type OpenWeatherClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	now            func() time.Time
}

// NewOpenWeatherClient returns a client that issues a single attempt per lookup.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithOptions(apiKey, apiURL, Options{Timeout: timeout})
}

func NewOpenWeatherClientWithOptions(apiKey, apiURL string, opts Options) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil || apiURL == "" {
		return nil, fmt.Errorf("invalid API URL %q", apiURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 100 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 2 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		timeout:        opts.Timeout,
		client:         httpClient,
		retryAttempts:  opts.RetryAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
		now:            time.Now,
	}, nil
}

type openWeatherResponse struct {
	Name string `json:"name"`
	Main *struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

// Lookup fetches the current reading for city. Retries only apply to rate limiting,
// upstream 5xx and timeouts, and only when more than one attempt is configured.
func (c *OpenWeatherClient) Lookup(ctx context.Context, city string) (models.WeatherReading, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return models.WeatherReading{}, newLookupError(city, ctx.Err())
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		reading, err := c.callAPI(ctx, city)
		if err == nil {
			return reading, nil
		}

		lastErr = err
		if !isRetryable(err) {
			break
		}
	}

	return models.WeatherReading{}, newLookupError(city, lastErr)
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, city string) (models.WeatherReading, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.WeatherReading{}, fmt.Errorf("build request: %w", err)
	}
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return models.WeatherReading{}, fmt.Errorf("request timeout: %w", err)
		}
		return models.WeatherReading{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if err := classifyStatus(resp.StatusCode); err != nil {
		return models.WeatherReading{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.WeatherReading{}, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openWeatherResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherReading{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return c.mapResponse(apiResp, city)
}

func isRetryable(err error) bool {
	switch CategorizeError(err) {
	case ErrorCategoryRateLimited, ErrorCategoryUpstream, ErrorCategoryTimeout:
		return true
	}
	return false
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrCityNotFound
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, code)
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

// mapResponse requires the main block and at least one of name or weather; a 2xx
// without them is not a reading.
func (c *OpenWeatherClient) mapResponse(apiResp openWeatherResponse, city string) (models.WeatherReading, error) {
	if apiResp.Main == nil {
		return models.WeatherReading{}, fmt.Errorf("%w: missing main block", ErrMalformedResponse)
	}
	if len(apiResp.Weather) == 0 && strings.TrimSpace(apiResp.Name) == "" {
		return models.WeatherReading{}, fmt.Errorf("%w: no name or weather", ErrMalformedResponse)
	}

	var label, description string
	if len(apiResp.Weather) > 0 {
		label = apiResp.Weather[0].Main
		description = apiResp.Weather[0].Description
	}

	name := strings.TrimSpace(apiResp.Name)
	if name == "" {
		name = strings.TrimSpace(city)
	}

	return models.WeatherReading{
		City:            name,
		TemperatureC:    apiResp.Main.Temp,
		HumidityPercent: apiResp.Main.Humidity,
		WindSpeed:       apiResp.Wind.Speed,
		Condition:       condition.Categorize(label),
		Description:     description,
		FetchedAt:       c.now(),
	}, nil
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a probe lookup and reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
