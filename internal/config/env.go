package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// EnvFileName is the optional environment file next to the settings file.
	EnvFileName = ".env"

	// EnvBaseURL overrides Config.BaseURL.
	EnvBaseURL = "LAUNCHER_UPDATER_BASE_URL"
	// EnvLogFile overrides Config.LogFile.
	EnvLogFile = "LAUNCHER_UPDATER_LOG_FILE"
	// EnvLogLevel overrides Config.LogLevel.
	EnvLogLevel = "LAUNCHER_UPDATER_LOG_LEVEL"
)

// LoadDotEnv loads variables from .env in dir if it exists.
// Variables already present in the environment are kept.
func LoadDotEnv(dir string) error {
	envPath := filepath.Join(dir, EnvFileName)

	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		return nil
	}

	return godotenv.Load(envPath)
}

// ApplyEnv overrides settings with non-empty environment variables.
func ApplyEnv(cfg *Config) {
	if value := os.Getenv(EnvBaseURL); value != "" {
		cfg.BaseURL = value
	}

	if value := os.Getenv(EnvLogFile); value != "" {
		cfg.LogFile = value
	}

	if value := os.Getenv(EnvLogLevel); value != "" {
		cfg.LogLevel = value
	}
}
