package utils

import (
	"os"
	"time"
)

func GetEnvVarWithDefault(envVar, defaultValue string) string {
	value, found := os.LookupEnv(envVar)
	if !found || value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDurationWithDefault parses envVar as a time.Duration, falling back to
// defaultValue when it is unset or malformed.
func GetEnvDurationWithDefault(envVar string, defaultValue time.Duration) time.Duration {
	value, found := os.LookupEnv(envVar)
	if !found {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
