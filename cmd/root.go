package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Techno-coder/pmu/internal/client"
	"github.com/Techno-coder/pmu/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	configDir string
	logLevel  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pmu",
	Short: "A small background music player",
	Long: `pmu plays local audio files from a background daemon.

Every command talks to the daemon over a loopback socket. If no daemon
is running, the first command starts one, and the daemon exits once its
queue runs out (unless loop_last is set) or it is told to stop.

Songs can be shown as Discord Rich Presence and scrobbled to Last.fm.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configDir != "" {
			config.SetDir(configDir)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default: user config dir/pmu)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// loadConfig loads the configuration. A malformed config file is reported
// and the defaults are used instead.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error (using defaults): %v\n", err)
	}
	return cfg
}

func dataFile(cfg *config.Config, name string) string {
	return filepath.Join(cfg.DataDir, name)
}

const (
	historyDBName  = "data.db"
	scrobbleDBName = "scrobbles.db"
	artworkDBName  = "artwork.db"
	statusName     = "status.json"
	pidName        = "daemon.pid"
	logName        = "daemon.log"
)

// newClient returns a client that spawns "pmu daemon" with the same
// configuration directory when nothing is listening.
func newClient(cfg *config.Config, logger zerolog.Logger) *client.Client {
	args := []string{"daemon"}
	if configDir != "" {
		args = append(args, "--config-dir", configDir)
	}

	return client.New(client.Config{
		Port:           cfg.Port,
		ConnectTimeout: cfg.ConnectTimeout,
		LockFile:       dataFile(cfg, pidName),
	}, client.ExecSpawner{Args: args}, logger)
}

// setupLogger creates a logger with the specified configuration
func setupLogger(output io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to a terminal stream
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}

// openLogFile opens path for appending, falling back to stderr.
func openLogFile(path string) (io.Writer, func()) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			return f, func() { _ = f.Close() }
		}
	}
	return os.Stderr, func() {}
}
