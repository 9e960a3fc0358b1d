package models

import (
	"time"

	"github.com/kjstillabower/weather-search/internal/condition"
)

// WeatherReading is one successful lookup. City is the provider's canonical name,
// which may differ in casing or spelling from what the user typed.
type WeatherReading struct {
	City            string             `json:"city"`
	TemperatureC    float64            `json:"temperatureC"`
	HumidityPercent int                `json:"humidityPercent"`
	WindSpeed       float64            `json:"windSpeed"`
	Condition       condition.Category `json:"condition"`
	Description     string             `json:"description,omitempty"`
	FetchedAt       time.Time          `json:"fetchedAt"`
}
