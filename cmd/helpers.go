package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ziadkadry99/perfreview/internal/config"
	"github.com/ziadkadry99/perfreview/internal/db"
	"github.com/ziadkadry99/perfreview/internal/logging"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `perfreview init` to create a config file", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// openRuntime loads config and opens the logger and database shared by the
// commands that touch data.
func openRuntime() (*config.Config, *zap.Logger, *db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return cfg, logger, database, nil
}
