package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const benchResponse = `{
	"main": {"temp": 15.5, "humidity": 65},
	"weather": [{"main": "Clear", "description": "clear sky"}],
	"wind": {"speed": 10.2},
	"name": "Paris"
}`

func BenchmarkClient_BuildRequest(b *testing.B) {
	c, _ := NewOpenWeatherClient("bench-api-key-0000", "https://api.openweathermap.org/data/2.5/weather", 2*time.Second)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.buildRequest(ctx, "Paris")
	}
}

func BenchmarkClient_ParseAndMap(b *testing.B) {
	c, _ := NewOpenWeatherClient("bench-api-key-0000", "https://api.openweathermap.org/data/2.5/weather", 2*time.Second)
	body := []byte(benchResponse)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var apiResp openWeatherResponse
		_ = json.Unmarshal(body, &apiResp)
		_, _ = c.mapResponse(apiResp, "paris")
	}
}

func BenchmarkCategorizeError(b *testing.B) {
	errs := []error{
		newLookupError("x", ErrCityNotFound),
		newLookupError("x", ErrUpstreamFailure),
		context.DeadlineExceeded,
		errors.New("connection refused"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CategorizeError(errs[i%len(errs)])
	}
}

func BenchmarkStatusLabel(b *testing.B) {
	codes := []int{200, 404, 429, 500, 503}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = statusLabel(codes[i%len(codes)])
	}
}
