package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Techno-coder/pmu/internal/daemon"
	"github.com/Techno-coder/pmu/internal/history"
)

var playNow bool

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <path>",
	Short: "Queue a song to play",
	Long: `Queue an audio file to play after the songs already queued.

If path does not exist, it is looked up in the history of earlier play
commands, so a song can be replayed by the same relative path or name
from any directory.

With --now, the queue is cleared and the song starts immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().BoolVar(&playNow, "now", false, "Clear the queue and play immediately")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	store, err := history.Open(dataFile(cfg, historyDBName))
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	path, err := store.Resolve(ctx, args[0])
	if errors.Is(err, history.ErrNotFound) {
		return fmt.Errorf("audio file does not exist: %s", args[0])
	}
	if err != nil {
		return err
	}

	return send(cmd.Context(), daemon.Play(path, playNow))
}
