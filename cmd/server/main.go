// Anti-Todo - turns productive tasks into unproductive ones.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/anti-todo/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// envFile is the dotenv file read before configuration is loaded.
var envFile string

// rootCmd runs the server when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:           "anti-todo",
	Short:         "Anti-Todo turns productive tasks into unproductive ones",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serveCmd.RunE,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.AddCommand(serveCmd, sweepCmd, promptsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// setup loads the environment and configuration and installs the JSON logger.
func setup() (*config.Config, *slog.Logger, error) {
	if err := godotenv.Load(envFile); err != nil {
		slog.Info("No .env file found, using environment variables", "path", envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
