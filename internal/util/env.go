// Package util provides environment lookups and short random codes shared by the
// wayfinder commands.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// FirstEnv returns the first non-empty value among keys and the key it came from.
// Later keys are fallbacks, e.g. a generic DATABASE_URL behind a wayfinder-specific name.
func FirstEnv(keys ...string) (value, key string) {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v, k
		}
	}
	return "", ""
}

// EnvOr returns the value of key, or fallback when it is unset or blank.
func EnvOr(key, fallback string) string {
	if v, _ := FirstEnv(key); v != "" {
		return v
	}
	return fallback
}

// ParseBoolEnv parses a boolean environment variable with a default value.
// Accepts true/1/yes/on and false/0/no/off, case-insensitive. Invalid values return the default.
func ParseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv: invalid boolean value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}
