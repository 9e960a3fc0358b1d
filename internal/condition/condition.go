package condition

import "strings"

// Category is a normalized bucket for the provider's free-text condition label.
type Category string

// Known categories. Anything the provider reports outside this set maps to Other.
const (
	Clear   Category = "clear"
	Clouds  Category = "clouds"
	Drizzle Category = "drizzle"
	Mist    Category = "mist"
	Rain    Category = "rain"
	Snow    Category = "snow"
	Other   Category = "other"
)

const imageDir = "/images/"

var known = map[string]Category{
	"clear":   Clear,
	"clouds":  Clouds,
	"drizzle": Drizzle,
	"mist":    Mist,
	"rain":    Rain,
	"snow":    Snow,
}

// Categorize maps a provider label (e.g. OpenWeather's weather[0].main) to a Category.
// Matching is case-insensitive and ignores surrounding whitespace. Empty or
// unrecognized labels return Other.
func Categorize(label string) Category {
	if c, ok := known[strings.ToLower(strings.TrimSpace(label))]; ok {
		return c
	}
	return Other
}

// Known reports whether c is one of the six named categories.
func (c Category) Known() bool {
	_, ok := known[string(c)]
	return ok
}

// IconPath returns the relative asset path for the category. Other falls back to the clear icon.
func IconPath(c Category) string {
	if !c.Known() {
		return imageDir + string(Clear) + ".png"
	}
	return imageDir + string(c) + ".png"
}

// HumidityIcon and WindIcon are the fixed assets shown next to the reading.
const (
	HumidityIcon = imageDir + "humidity.png"
	WindIcon     = imageDir + "wind.png"
)
