// Package env reads raw process environment values for the few knobs
// consulted before config loading (log format, for example).
package env

import "os"

// Get returns the environment value for key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
