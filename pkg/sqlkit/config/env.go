package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/bnjsx/sqlkit/pkg/sqlkit/logging"
)

// EnvLoader reads configuration from the process environment after loading
// .env files from a configured folder.
type EnvLoader struct {
	logger logging.Logger
}

// NewEnvFile loads environment files from configFolder and returns a Config
// backed by the resulting process environment.
//
// Load order: .env first, then an APP_ENV specific override file
// (.<APP_ENV>.env) when APP_ENV is set. Missing files are not an error.
func NewEnvFile(configFolder string, logger logging.Logger) *EnvLoader {
	loader := &EnvLoader{logger: logger}
	loader.read(configFolder)

	return loader
}

func (e *EnvLoader) read(folder string) {
	defaultFile := filepath.Join(folder, ".env")

	if err := godotenv.Load(defaultFile); err == nil {
		e.logger.Infof("loaded config from file: %v", defaultFile)
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		overrideFile := filepath.Join(folder, "."+env+".env")

		if err := godotenv.Overload(overrideFile); err == nil {
			e.logger.Infof("loaded config from file: %v", overrideFile)
		}
	}
}

func (*EnvLoader) Get(key string) string {
	return os.Getenv(key)
}

func (*EnvLoader) GetOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultValue
}
