package env

import (
	"os"
	"strings"
)

// Get returns the value of the given environment variable or a fallback.
// Blank values count as unset.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// First returns the first non-blank value among keys, or fallback.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := Get(key, ""); val != "" {
			return val
		}
	}
	return fallback
}
