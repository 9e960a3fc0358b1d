package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateQuery_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		b     Bounds
		want  error
	}{
		{"empty", "", DefaultBounds, ErrQueryEmpty},
		{"spaces", "   ", DefaultBounds, ErrQueryEmpty},
		{"tab", "\t", DefaultBounds, ErrQueryEmpty},
		{"too short", "x", Bounds{MinLen: 2, MaxLen: 100}, ErrQueryTooShort},
		{"too long", strings.Repeat("a", 101), DefaultBounds, ErrQueryTooLong},
		{"slash", "par/is", DefaultBounds, ErrQueryInvalidChars},
		{"question", "par?is", DefaultBounds, ErrQueryInvalidChars},
		{"hash", "par#is", DefaultBounds, ErrQueryInvalidChars},
		{"control", "par\x00is", DefaultBounds, ErrQueryInvalidChars},
		{"percent", "par%is", DefaultBounds, ErrQueryInvalidChars},
		{"ampersand", "a&b", DefaultBounds, ErrQueryInvalidChars},
		{"angle bracket", "<script>", DefaultBounds, ErrQueryInvalidChars},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateQuery(tc.input, tc.b)
			if !errors.Is(err, tc.want) {
				t.Errorf("ValidateQuery(%q) error = %v, want %v", tc.input, err, tc.want)
			}
		})
	}
}

func TestValidateQuery_Accepts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Paris", "Paris"},
		{"with space", "New York", "New York"},
		{"country suffix", "London,uk", "London,uk"},
		{"hyphen", "Saint-Denis", "Saint-Denis"},
		{"period and apostrophe", "St. John's", "St. John's"},
		{"trimmed", "  Tokyo  ", "Tokyo"},
		{"unicode", "Zürich", "Zürich"},
		{"digits", "Area51", "Area51"},
		{"keeps case", "pArIs", "pArIs"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateQuery(tc.input, DefaultBounds)
			if err != nil {
				t.Fatalf("ValidateQuery() err = %v", err)
			}
			if got != tc.want {
				t.Errorf("ValidateQuery() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateQuery_LengthBoundaries(t *testing.T) {
	if _, err := ValidateQuery(strings.Repeat("é", 100), DefaultBounds); err != nil {
		t.Errorf("100 runes: err = %v", err)
	}
	if _, err := ValidateQuery(strings.Repeat("é", 101), DefaultBounds); !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("101 runes: err = %v, want ErrQueryTooLong", err)
	}
	if _, err := ValidateQuery("ab", Bounds{MinLen: 2}); err != nil {
		t.Errorf("min boundary: err = %v", err)
	}
}
