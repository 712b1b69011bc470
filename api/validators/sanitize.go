package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims input and cuts it to at most maxLen runes.
func SanitizeString(input string, maxLen int) string {
	out := strings.TrimSpace(input)
	if maxLen <= 0 || utf8.RuneCountInString(out) <= maxLen {
		return out
	}
	runes := []rune(out)
	return strings.TrimSpace(string(runes[:maxLen]))
}

// NormalizeEmail trims and lower-cases an address so uniqueness is case-insensitive.
func NormalizeEmail(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// OptionalString sanitizes *input and maps blanks to nil.
func OptionalString(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	if value := SanitizeString(*input, maxLen); value != "" {
		return &value
	}
	return nil
}
