package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/axellelanca/locashare/internal/config"
)

// Cfg holds the configuration loaded before any subcommand runs.
var Cfg *config.Config

// Logger is the process logger built from Cfg.
var Logger *slog.Logger

// RootCmd is the base command. Subcommands (run-server, migrate, seed,
// create, stats) register themselves from their own init functions.
var RootCmd = &cobra.Command{
	Use:   "locashare",
	Short: "Location search, short links and live recommendations",
	Long: `locashare serves proximity search over points of interest, a URL
shortener with click analytics, and real-time delivery of AI recommendations
and location updates over WebSocket and server-sent events.`,
	SilenceUsage: true,
}

// Execute runs the command tree. It is called from main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	Cfg = cfg
	Logger = config.SetupLogger(cfg)
}
