// Package config provides configuration access for sqlkit datasources. Values
// come from the process environment, optionally seeded from .env files.
package config

// Config exposes configuration values by key.
type Config interface {
	Get(key string) string
	GetOrDefault(key, defaultValue string) string
}
