package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-grok-pilot/internal/config"
	"github.com/teslashibe/go-grok-pilot/internal/log"
)

var (
	cfgFile  string
	logLevel string
	mock     bool
)

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "Vision-gated flight control for a small quadcopter",
	Long: `pilot flies a Tello-class quadcopter behind a safety layer:
every horizontal move is checked against a vision model's clearance
estimate, people are verified by face embeddings plus the vision model,
and a visual servo keeps a verified person centered in frame.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML, YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&mock, "mock", false, "fly the simulated vehicle")

	rootCmd.AddCommand(serveCmd, preflightCmd, versionCmd)
}

// loadSettings reads settings and applies flag overrides, then sets up
// the global logger.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	s, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		s.LogLevel = logLevel
	}
	if cmd.Flags().Changed("mock") {
		s.MockVehicle = mock
	}
	log.Init(s.LogLevel, s.LogFormat)
	return s, nil
}
