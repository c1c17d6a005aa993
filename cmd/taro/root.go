package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/config"
	"github.com/kapu/taro-go/internal/util"
)

var rootCmd = &cobra.Command{
	Use:           "taro",
	Short:         "Tarot reading backend backed by a local language model",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// loadRuntime reads the environment configuration and builds the logger.
// Commands that touch external services call it; offline commands do not.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
