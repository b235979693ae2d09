// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/expenseflow and cmd/expenseflow-relay.
package cli

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"expenseflow/internal/config"
	"expenseflow/internal/kv"
	"expenseflow/internal/kv/memory"
	"expenseflow/internal/kv/sqlite"
	"expenseflow/internal/log"
)

// SetupLogger initializes structured logging and sets it as the default.
func SetupLogger(pretty bool) *log.Logger {
	logger := log.New(log.Config{
		Level:  slog.LevelInfo,
		Pretty: pretty,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Bootstrap loads the environment file, configuration and logger in one
// call. Exits the process on configuration validation failure.
func Bootstrap() (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg.LogPretty)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// NewStore builds the key-value store selected by DATA_BACKEND.
// Returns the store or exits the process on failure.
func NewStore(logger *log.Logger, cfg *config.Config) kv.Store {
	switch cfg.DataBackend {
	case "sqlite":
		store, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		logger.Info("Using SQLite store", "path", cfg.SQLiteDBPath)
		return store
	default:
		logger.Info("Using in-memory store")
		return memory.New()
	}
}

// InitSQLite initializes the SQLite store directly, for processes that
// need the audit journal regardless of DATA_BACKEND.
// Returns the store or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *sqlite.Store {
	store, err := sqlite.New(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return store
}

