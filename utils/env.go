// pkuhole/utils/env.go
package utils

import (
	"fmt"
	"os"
)

// GetEnv reads an environment variable or returns a default value. An
// empty value counts as set.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// RequireEnv reads a variable that has no sensible default.
func RequireEnv(key string) (string, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", fmt.Errorf("environment variable %s is not set", key)
	}
	return value, nil
}
