package app

import (
	"fmt"
	"math"
	"strconv"

	"github.com/kjstillabower/weather-search/internal/condition"
)

// View is what a client renders. It is derived from State and holds no state of its own.
type View struct {
	Theme       string       `json:"theme"`
	Loading     bool         `json:"loading"`
	Query       string       `json:"query"`
	ShowRefresh bool         `json:"showRefresh"`
	Weather     *WeatherView `json:"weather,omitempty"`
	Dropdown    []string     `json:"dropdown,omitempty"`
}

// WeatherView is the formatted reading.
type WeatherView struct {
	City         string `json:"city"`
	Temperature  string `json:"temperature"`
	Humidity     string `json:"humidity"`
	Wind         string `json:"wind"`
	Condition    string `json:"condition"`
	Icon         string `json:"icon"`
	HumidityIcon string `json:"humidityIcon"`
	WindIcon     string `json:"windIcon"`
}

// Project renders s. The reading is hidden while loading, and the dropdown only
// lists entries when it is open and the history is non-empty.
func Project(s State) View {
	v := View{
		Theme:       "light",
		Loading:     s.Loading,
		Query:       s.Query,
		ShowRefresh: s.Reading != nil,
	}
	if s.DarkMode {
		v.Theme = "dark"
	}
	if s.Reading != nil && !s.Loading {
		r := s.Reading
		v.Weather = &WeatherView{
			City:         r.City,
			Temperature:  fmt.Sprintf("%d°C", roundHalfUp(r.TemperatureC)),
			Humidity:     strconv.Itoa(r.HumidityPercent) + "%",
			Wind:         strconv.FormatFloat(r.WindSpeed, 'f', -1, 64) + " m/s",
			Condition:    string(r.Condition),
			Icon:         condition.IconPath(r.Condition),
			HumidityIcon: condition.HumidityIcon,
			WindIcon:     condition.WindIcon,
		}
	}
	if s.DropdownVisible && len(s.Recent) > 0 {
		v.Dropdown = append([]string(nil), s.Recent...)
	}
	return v
}

// roundHalfUp rounds .5 toward positive infinity, so -2.5 becomes -2.
func roundHalfUp(f float64) int {
	return int(math.Floor(f + 0.5))
}
