package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrQueryEmpty means the query was blank after trimming.
	ErrQueryEmpty = errors.New("city name is required")
	// ErrQueryTooShort means the query has fewer runes than allowed.
	ErrQueryTooShort = errors.New("city name too short")
	// ErrQueryTooLong means the query has more runes than allowed.
	ErrQueryTooLong = errors.New("city name too long")
	// ErrQueryInvalidChars means the query has a character outside the allowed set.
	ErrQueryInvalidChars = errors.New("city name contains invalid characters")
)

// Bounds are rune-count limits. Zero disables a limit.
type Bounds struct {
	MinLen int
	MaxLen int
}

// DefaultBounds matches the shipped configuration.
var DefaultBounds = Bounds{MinLen: 1, MaxLen: 100}

// ValidateQuery trims input and checks it against b. City names may contain
// letters, digits, spaces and the punctuation in "St. John's, Saint-Denis".
// The trimmed text is returned unchanged otherwise, since the provider is
// case-insensitive and the display keeps the user's spelling.
func ValidateQuery(input string, b Bounds) (string, error) {
	s := strings.TrimSpace(input)
	n := utf8.RuneCountInString(s)
	switch {
	case n == 0:
		return "", ErrQueryEmpty
	case b.MinLen > 0 && n < b.MinLen:
		return "", ErrQueryTooShort
	case b.MaxLen > 0 && n > b.MaxLen:
		return "", ErrQueryTooLong
	}
	if strings.IndexFunc(s, disallowed) >= 0 {
		return "", ErrQueryInvalidChars
	}
	return s, nil
}

func disallowed(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return false
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return false
	}
	return true
}
