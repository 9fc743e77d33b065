package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Techno-coder/pmu/internal/daemon"
	"github.com/Techno-coder/pmu/internal/tui"
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Display a terminal UI for the player",
	Long: `Display a terminal user interface showing the song the daemon is
playing, with real-time updates from the daemon's status file.

The TUI includes:
- Now playing display with title, artist, and album
- Elapsed time, queue length and volume
- Progress towards the scrobble threshold
- Songs that finished while the TUI was open

Keys: space pauses, n skips, s stops the daemon, +/- change the volume
and q quits. Controls never start a daemon.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	// The terminal belongs to the TUI, so only client errors are logged.
	c := newClient(cfg, setupLogger(os.Stderr, "error"))
	control := func(command daemon.Command) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return c.SendRunning(ctx, command)
	}

	app := tui.New(tui.Config{
		RefreshRate:       500 * time.Millisecond,
		StatusFile:        dataFile(cfg, statusName),
		ScrobbleThreshold: cfg.LastFM.Threshold,
	}, control)

	return app.Run(cmd.Context())
}
