package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/encore/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:     "encore",
		Usage:    "Voice-style music playback against a streaming catalog",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrAuthFailed) || errors.Is(err, shared.ErrAuthExpired) {
			logger.Error("authentication required", "error", err)
			os.Exit(1)
		}
		logger.Fatalf("application error: %v", err)
	}
}
