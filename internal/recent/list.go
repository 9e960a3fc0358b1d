package recent

import "strings"

// DefaultMax is the number of cities kept in the history.
const DefaultMax = 5

// List is the recent-city history, most recent first. It never holds two entries
// that match under Same, and never more than the configured maximum.
type List []string

// Same reports whether two city names refer to the same history entry.
func Same(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Record returns a new list with city moved (or added) to the front and the
// result truncated to max entries. The latest spelling of city wins. A blank
// city returns a copy of the input. The input is never modified.
func Record(list List, city string, max int) List {
	city = strings.TrimSpace(city)
	if city == "" {
		return append(List(nil), list...)
	}
	if max <= 0 {
		max = DefaultMax
	}
	out := make(List, 0, max)
	out = append(out, city)
	for _, c := range list {
		if len(out) == max {
			break
		}
		if !Same(c, city) {
			out = append(out, c)
		}
	}
	return out
}

// Delete returns a new list without city. Deleting an absent city returns an
// equal copy of the input.
func Delete(list List, city string) List {
	out := make(List, 0, len(list))
	for _, c := range list {
		if !Same(c, city) {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether city is in the list.
func (l List) Contains(city string) bool {
	for _, c := range l {
		if Same(c, city) {
			return true
		}
	}
	return false
}
