// Lumy Core - e-paper device orchestrator
//
// This is the main entry point for the Lumy device. On boot it brings the
// network up (or serves the WiFi setup portal), pairs the device with the
// cloud, and then keeps the panel's widgets fresh while syncing
// configuration and status with the backend.
//
// For the boot order and component wiring, see internal/lifecycle.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/lumy-core/migrations"

	"github.com/nerrad567/lumy-core/internal/infrastructure/config"
	"github.com/nerrad567/lumy-core/internal/infrastructure/logging"
	"github.com/nerrad567/lumy-core/internal/lifecycle"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "/etc/lumy/config.yaml"

// configEnv overrides the default configuration path.
const configEnv = "LUMY_CONFIG"

func main() {
	flags := pflag.NewFlagSet("lumy", pflag.ExitOnError)
	configFlag := flags.StringP("config", "c", "", "path to config.yaml (default $"+configEnv+" or "+defaultConfigPath+")")
	showVersion := flags.Bool("version", false, "print version and exit")
	flags.Parse(os.Args[1:]) //nolint:errcheck // ExitOnError

	if *showVersion {
		fmt.Printf("lumy %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Cancel on Ctrl+C and SIGTERM for a graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Configuration file; a missing file means defaults
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Lumy",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	dev, err := lifecycle.Build(ctx, cfg, log, version)
	if err != nil {
		return fmt.Errorf("building device: %w", err)
	}
	defer func() {
		if closeErr := dev.Close(); closeErr != nil {
			log.Error("shutdown incomplete", "error", closeErr)
		}
	}()

	log.Info("initialisation complete", "device_id", dev.ID)

	if err := dev.Run(ctx); err != nil {
		return err
	}

	log.Info("Lumy stopped")
	return nil
}

// getConfigPath returns the configuration file path: the --config flag,
// then the LUMY_CONFIG environment variable, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
