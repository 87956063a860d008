// Kora is a Chinese voice interview agent. The daemon owns the interview
// session; a browser page, the terminal console or a gRPC caller drives it.
//
// Usage:
//
//	kora serve [--config /path/to/kora.yaml]
//	kora console [--addr localhost:50051]
//	kora version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nadzzz/kora/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:           "kora",
	Short:         "Kora - Chinese voice interview agent",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `Kora runs a short spoken job interview in Chinese: it narrates questions,
captures spoken answers, asks up to two generated follow-up questions per
question and ends with a summary of everything that was said.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (e.g. configs/kora.yaml)")
	rootCmd.SetVersionTemplate("kora {{.Version}}\n")
}

// loadConfig loads the configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	config.SetupLogging(cfg.Logging)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Debug("command failed", "error", err)
		os.Exit(1)
	}
}
