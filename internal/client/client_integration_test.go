//go:build integration

package client

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/kjstillabower/weather-search/internal/condition"
	"github.com/kjstillabower/weather-search/internal/testhelpers"
)

var hexKey = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

func isValidAPIKeyFormat(key string) error {
	if !hexKey.MatchString(key) {
		return fmt.Errorf("API key should be 32 hexadecimal characters, got %d characters", len(key))
	}
	return nil
}

func newIntegrationClient(t *testing.T) *OpenWeatherClient {
	t.Helper()
	cfg := testhelpers.GetIntegrationConfig(t)
	if err := isValidAPIKeyFormat(cfg.APIKey); err != nil {
		t.Fatalf("API key format validation failed: %v", err)
	}
	c, err := NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, testhelpers.IntegrationTimeout)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestOpenWeatherClient_ValidateAPIKey_Integration(t *testing.T) {
	c := newIntegrationClient(t)
	if err := c.ValidateAPIKey(context.Background()); err != nil {
		t.Errorf("ValidateAPIKey() error = %v, want nil (API key may not be activated yet)", err)
	}
}

func TestOpenWeatherClient_Lookup_Integration(t *testing.T) {
	c := newIntegrationClient(t)

	reading, err := c.Lookup(context.Background(), "london")
	if err != nil {
		t.Fatalf("Lookup() error = %v (API key may not be activated yet)", err)
	}
	if reading.City != "London" {
		t.Errorf("City = %q, want canonical London", reading.City)
	}
	if reading.HumidityPercent <= 0 || reading.HumidityPercent > 100 {
		t.Errorf("HumidityPercent = %d, want 1..100", reading.HumidityPercent)
	}
	if reading.Condition != condition.Other && !reading.Condition.Known() {
		t.Errorf("Condition = %q, not a known category", reading.Condition)
	}
}

func TestOpenWeatherClient_Lookup_NotFound_Integration(t *testing.T) {
	c := newIntegrationClient(t)

	_, err := c.Lookup(context.Background(), "Qwxzyville Nowhere")
	var lerr *LookupError
	if !errors.As(err, &lerr) || !lerr.NotFound() {
		t.Fatalf("Lookup() error = %v, want not-found LookupError", err)
	}
}
