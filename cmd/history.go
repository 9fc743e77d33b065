package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Techno-coder/pmu/internal/history"
	"github.com/Techno-coder/pmu/internal/scrobbler"
)

var (
	historyLimit     int
	historyScrobbles bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently played songs",
	Long: `List the play commands recorded in the history database, newest first,
with the file each one resolved to.

With --scrobbles, list the Last.fm scrobble queue instead, including plays
that are still waiting to be submitted.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries (0 for all)")
	historyCmd.Flags().BoolVar(&historyScrobbles, "scrobbles", false, "Show the scrobble queue")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	ctx := cmd.Context()

	if historyScrobbles {
		queue, err := scrobbler.NewQueue(dataFile(cfg, scrobbleDBName))
		if err != nil {
			return fmt.Errorf("failed to open scrobble queue: %w", err)
		}
		defer queue.Close()
		return printScrobbles(ctx, os.Stdout, queue, historyLimit)
	}

	store, err := history.Open(dataFile(cfg, historyDBName))
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	entries, err := store.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	renderHistory(os.Stdout, entries, time.Now())
	return nil
}

func renderHistory(w io.Writer, entries []history.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No songs played yet.")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Played", "Input", "File"})
	for _, e := range entries {
		t.AppendRow(table.Row{ago(now.Sub(e.Timestamp)), e.Input, filepath.Base(e.Path)})
	}
	t.Render()
}

func printScrobbles(ctx context.Context, w io.Writer, queue *scrobbler.Queue, limit int) error {
	entries, err := queue.All(ctx)
	if err != nil {
		return err
	}
	pending, err := queue.Count(ctx, false)
	if err != nil {
		return err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No scrobbles recorded.")
		return nil
	}

	now := time.Now()
	t := newTable(w)
	t.AppendHeader(table.Row{"Started", "Artist", "Track", "Played", "Status"})
	for _, e := range entries {
		status := "submitted"
		switch {
		case !e.Submitted && e.Error != "":
			status = fmt.Sprintf("pending (%d failed: %s)", e.Attempts, e.Error)
		case !e.Submitted:
			status = "pending"
		case e.Error != "":
			status = "ignored: " + e.Error
		}
		t.AppendRow(table.Row{ago(now.Sub(e.StartedAt)), e.Artist, e.Track, clock(e.Played), status})
	}
	t.AppendFooter(table.Row{"", "", "", "Pending", pending})
	t.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetAllowedRowLength(termWidth())
	return t
}

func termWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 120
}

// ago formats d as a short relative time.
func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
