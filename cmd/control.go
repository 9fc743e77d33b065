package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Techno-coder/pmu/internal/daemon"
)

// pauseCmd represents the pause command
var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause or unpause the current song",
	Args:  cobra.NoArgs,
	RunE:  sendCommand(daemon.Command{Kind: daemon.KindPause}),
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the player",
	Long:  `Stop playback and shut the daemon down. The current song is scrobbled if it was played long enough.`,
	Args:  cobra.NoArgs,
	RunE:  sendCommand(daemon.Command{Kind: daemon.KindStop}),
}

// skipCmd represents the skip command
var skipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip to the next song",
	Args:  cobra.NoArgs,
	RunE:  sendCommand(daemon.Command{Kind: daemon.KindSkip}),
}

// volumeCmd represents the volume command
var volumeCmd = &cobra.Command{
	Use:   "volume <0-100>",
	Short: "Set the playback volume",
	Long: `Set the playback volume as a percentage of full scale.

The change applies to the current song and every song after it. The
configured default volume is restored when the daemon restarts.`,
	Args: cobra.ExactArgs(1),
	RunE: runVolume,
}

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(volumeCmd)
}

func runVolume(cmd *cobra.Command, args []string) error {
	level, err := strconv.Atoi(args[0])
	if err != nil || level < 0 || level > 100 {
		return fmt.Errorf("invalid volume level: %s (must be a number 0-100)", args[0])
	}
	return send(cmd.Context(), daemon.Volume(float64(level)/100))
}

func sendCommand(c daemon.Command) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return send(cmd.Context(), c)
	}
}

// send delivers c, starting the daemon first if necessary.
func send(ctx context.Context, c daemon.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := loadConfig()
	logger := setupLogger(os.Stderr, logLevel)
	return newClient(cfg, logger).Send(ctx, c)
}
