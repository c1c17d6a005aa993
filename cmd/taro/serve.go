package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/app"
	"github.com/kapu/taro-go/internal/constants"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("Taro starting...",
			zap.String("addr", cfg.Server.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("log_level", cfg.Logging.Level),
			zap.Bool("debug", cfg.Debug),
		)

		buildCtx, buildCancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		container, err := app.Build(buildCtx, cfg, logger)
		buildCancel()
		if err != nil {
			logger.Error("Failed to assemble application services", zap.Error(err))
			return err
		}

		// A model that is not loaded yet is reported by /ready; it does not
		// block startup.
		setupCtx, setupCancel := context.WithTimeout(cmd.Context(), constants.Timeouts.ModelSetup)
		if err := container.Model.Setup(setupCtx); err != nil {
			logger.Warn("Model not ready at startup", zap.Error(err))
		}
		setupCancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		errCh := make(chan error, 1)
		go func() {
			errCh <- container.Server.ListenAndServe()
		}()

		var runErr error
		select {
		case sig := <-sigCh:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		case runErr = <-errCh:
			if runErr != nil {
				logger.Error("HTTP server error", zap.Error(runErr))
			}
		}

		logger.Info("Shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.Timeouts.ServerShutdown)
		defer shutdownCancel()

		if err := container.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}

		logger.Info("Shutdown complete")
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
