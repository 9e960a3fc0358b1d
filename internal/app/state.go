package app

import (
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/recent"
)

// State is the whole application state. It is a value: the update functions
// below take a State and return the next one, and Session is the only place
// that stores it.
type State struct {
	Query           string                 `json:"query"`
	Reading         *models.WeatherReading `json:"reading,omitempty"`
	Loading         bool                   `json:"loading"`
	DarkMode        bool                   `json:"darkMode"`
	DropdownVisible bool                   `json:"dropdownVisible"`
	Recent          recent.List            `json:"recent"`
}

func initialState(list recent.List, lastCity string) State {
	return State{
		Query:    lastCity,
		DarkMode: true,
		Recent:   append(recent.List{}, list...),
	}
}

// clone returns a deep copy so callers never share the reading or list.
func (s State) clone() State {
	out := s
	if s.Reading != nil {
		r := *s.Reading
		out.Reading = &r
	}
	out.Recent = append(recent.List{}, s.Recent...)
	return out
}

func withQuery(s State, q string) State {
	s.Query = q
	return s
}

func beginLookup(s State) State {
	s.Loading = true
	return s
}

// applySuccess replaces the reading wholesale and echoes the looked-up text into the input.
func applySuccess(s State, reading models.WeatherReading, query string) State {
	s.Reading = &reading
	s.Query = query
	return s
}

func withRecent(s State, list recent.List) State {
	s.Recent = append(recent.List{}, list...)
	return s
}

// finishLookup clears Loading once no lookup is outstanding.
func finishLookup(s State, outstanding int) State {
	s.Loading = outstanding > 0
	return s
}

func toggleTheme(s State) State {
	s.DarkMode = !s.DarkMode
	return s
}

func setDropdown(s State, visible bool) State {
	s.DropdownVisible = visible
	return s
}
