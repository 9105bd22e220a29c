package utils

import "os"

// SafeEnv reads key from the environment, falling back when unset or blank.
func SafeEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
