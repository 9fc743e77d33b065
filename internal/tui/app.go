// Package tui is a terminal view of the daemon's status file with playback
// controls.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Techno-coder/pmu/internal/daemon"
)

const (
	maxRecentSongs = 5
	volumeStep     = 0.05
)

// Config holds TUI configuration options
type Config struct {
	RefreshRate       time.Duration // How often the status file is read
	StatusFile        string        // Status snapshot written by the daemon
	ScrobbleThreshold time.Duration // Listening time before a song counts as scrobbled
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate:       500 * time.Millisecond,
		ScrobbleThreshold: 110 * time.Second,
	}
}

// Controller delivers a command to the daemon.
type Controller func(daemon.Command) error

// RecentSong stores info about a song that finished while the TUI was open
type RecentSong struct {
	Title     string
	Artist    string
	Scrobbled bool
	PlayedAt  time.Time
}

// App is the TUI application for displaying daemon playback
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	status     *tview.TextView
	scrobble   *tview.TextView
	recent     *tview.TextView

	config  Config
	control Controller
	now     func() time.Time

	// mu guards everything below; the key handler and the poller both touch it.
	mu sync.Mutex

	current      *daemon.Status
	message      string // Last control error
	sessionStart time.Time
	songsPlayed  int

	// Ring buffer for recent songs
	recentBuf   [maxRecentSongs]RecentSong
	recentCount int

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastScrobble   string
	lastRecent     string
	lastStatus     string

	// Cached progress bar width; updated only when GetInnerRect is positive.
	lastBarWidth int

	cancelFunc context.CancelFunc
}

// New creates a new TUI application. control may be nil for a read-only view.
func New(cfg Config, control Controller) *App {
	a := &App{
		app:          tview.NewApplication(),
		config:       cfg,
		control:      control,
		now:          time.Now,
		sessionStart: time.Now(),
	}
	a.setupUI()
	return a
}

func (a *App) setupUI() {
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	a.scrobble = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.scrobble.SetBorder(true).
		SetTitle(" Scrobble ").
		SetTitleAlign(tview.AlignLeft)

	a.recent = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.recent.SetBorder(true).
		SetTitle(" Recent ").
		SetTitleAlign(tview.AlignLeft)

	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)

	bottomRow := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.scrobble, 0, 1, false).
		AddItem(a.recent, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 0, 3, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(bottomRow, 7, 1, false).
		AddItem(a.status, 1, 1, false)

	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	switch event.Rune() {
	case 'q', 'Q':
		a.Stop()
		return nil
	case ' ', 'p', 'P':
		a.send(daemon.Command{Kind: daemon.KindPause})
		return nil
	case 'n', 'N':
		a.send(daemon.Command{Kind: daemon.KindSkip})
		return nil
	case 's', 'S':
		a.send(daemon.Command{Kind: daemon.KindStop})
		return nil
	case '+', '=':
		a.nudgeVolume(volumeStep)
		return nil
	case '-', '_':
		a.nudgeVolume(-volumeStep)
		return nil
	}
	return event
}

func (a *App) nudgeVolume(delta float64) {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if current == nil {
		return
	}

	level := math.Max(0, math.Round((current.Volume+delta)*100)/100)
	a.send(daemon.Volume(level))
}

// send runs cmd through the controller off the UI goroutine.
func (a *App) send(cmd daemon.Command) {
	if a.control == nil {
		return
	}
	go func() {
		err := a.control(cmd)

		a.mu.Lock()
		a.message = ""
		if err != nil {
			a.message = err.Error()
		}
		a.mu.Unlock()
		a.refresh()
	}()
}

// Run reads the status file every refresh interval and redraws until the
// user quits or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancelFunc = context.WithCancel(ctx)
	defer a.cancelFunc()

	go a.poll(ctx)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func (a *App) poll(ctx context.Context) {
	refreshRate := a.config.RefreshRate
	if refreshRate <= 0 {
		refreshRate = 500 * time.Millisecond
	}
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		a.observe(a.readStatus())
		a.refresh()

		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
		}
	}
}

// readStatus returns nil when no daemon is running.
func (a *App) readStatus() *daemon.Status {
	s, err := daemon.ReadStatus(a.config.StatusFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			a.mu.Lock()
			a.message = err.Error()
			a.mu.Unlock()
		}
		return nil
	}
	return s
}

// observe records a new snapshot, moving the previous song into the recent
// list when the current song changed.
func (a *App) observe(s *daemon.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.current
	a.current = s

	if prev == nil || prev.Path == "" {
		return
	}
	if s != nil && s.Path == prev.Path && s.StartedAt.Equal(prev.StartedAt) {
		return
	}

	a.addToRecentSongs(prev)
	a.songsPlayed++
}

// addToRecentSongs must be called with a.mu held.
func (a *App) addToRecentSongs(s *daemon.Status) {
	played := s.ElapsedAt(a.now())
	idx := a.recentCount % maxRecentSongs
	a.recentBuf[idx] = RecentSong{
		Title:     s.Title,
		Artist:    s.Artist,
		Scrobbled: s.Artist != "" && played >= a.config.ScrobbleThreshold,
		PlayedAt:  a.now(),
	}
	a.recentCount++
}

// getRecentSongs returns recent songs most recent first. Must be called
// with a.mu held.
func (a *App) getRecentSongs() []RecentSong {
	n := min(a.recentCount, maxRecentSongs)
	result := make([]RecentSong, n)
	for i := 0; i < n; i++ {
		idx := (a.recentCount - 1 - i) % maxRecentSongs
		result[i] = a.recentBuf[idx]
	}
	return result
}

func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		update(a.nowPlaying, &a.lastNowPlaying, nowPlayingText(a.current))
		update(a.progress, &a.lastProgress, a.progressText())
		update(a.scrobble, &a.lastScrobble, a.scrobbleText())
		update(a.recent, &a.lastRecent, recentText(a.getRecentSongs()))
		update(a.status, &a.lastStatus, statusText(a.message))
	})
}

func update(view *tview.TextView, last *string, text string) {
	if text != *last {
		*last = text
		view.SetText(text)
	}
}

func nowPlayingText(s *daemon.Status) string {
	if s == nil {
		return "\n\n[gray]Daemon not running[-]"
	}
	if s.State == daemon.StateIdle {
		return "\n\n[gray]Nothing playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(s.Title)))
	if s.Artist != "" {
		sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(s.Artist)))
	}
	if s.Album != "" {
		sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(s.Album)))
	}

	stateIcon := "[green]▶[-]"
	if s.State == daemon.StatePaused {
		stateIcon = "[yellow]⏸[-]"
	}
	sb.WriteString(fmt.Sprintf("\n\n%s", stateIcon))
	return sb.String()
}

// progressText must be called with a.mu held.
func (a *App) progressText() string {
	s := a.current
	if s == nil || s.State == daemon.StateIdle {
		return ""
	}

	_, _, width, _ := a.progress.GetInnerRect()
	if barWidth := width - 14; barWidth > 0 {
		a.lastBarWidth = barWidth
	}
	if a.lastBarWidth < 10 {
		a.lastBarWidth = 10
	}

	elapsed := s.ElapsedAt(a.now())
	return fmt.Sprintf("%s  queue %d  vol %d%%  %s",
		formatDuration(elapsed),
		s.QueueLen,
		int(math.Round(s.Volume*100)),
		buildProgressBar(elapsed, a.config.ScrobbleThreshold, a.lastBarWidth/2),
	)
}

// scrobbleText must be called with a.mu held.
func (a *App) scrobbleText() string {
	var sb strings.Builder

	s := a.current
	switch {
	case s == nil || s.State == daemon.StateIdle:
		sb.WriteString("[gray]No song[-]\n")
	case s.Artist == "":
		sb.WriteString("[gray]Unknown artist, not scrobbled[-]\n")
	default:
		elapsed := s.ElapsedAt(a.now())
		if elapsed >= a.config.ScrobbleThreshold {
			sb.WriteString("[green]✓ Will scrobble[-]\n")
		} else {
			progress := 100.0
			if a.config.ScrobbleThreshold > 0 {
				progress = float64(elapsed) / float64(a.config.ScrobbleThreshold) * 100
			}
			filled := int(progress / 10)
			bar := strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
			sb.WriteString(fmt.Sprintf("[yellow]%s %.0f%%[-]\n", bar, progress))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Played: %d\n", a.songsPlayed))
	sb.WriteString(fmt.Sprintf("Session: %s", formatDuration(a.now().Sub(a.sessionStart))))
	return sb.String()
}

func recentText(songs []RecentSong) string {
	if len(songs) == 0 {
		return "[gray]No recent songs[-]"
	}

	var sb strings.Builder
	for i, song := range songs {
		if i > 0 {
			sb.WriteString("\n")
		}
		if song.Scrobbled {
			sb.WriteString("[green]✓[-] ")
		} else {
			sb.WriteString("[red]✗[-] ")
		}

		title := []rune(song.Title)
		if len(title) > 20 {
			title = append(title[:17], []rune("...")...)
		}
		sb.WriteString(fmt.Sprintf("[white]%s[-]", tview.Escape(string(title))))
	}
	return sb.String()
}

func statusText(message string) string {
	if message != "" {
		return fmt.Sprintf("[red]%s[-]", tview.Escape(message))
	}
	return "[gray]q:quit  space:pause  n:skip  s:stop  +/-:volume[-]"
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration == 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}

	progress := float64(position) / float64(duration)
	progress = math.Min(math.Max(progress, 0), 1)

	filled := int(progress * float64(width))
	empty := width - filled

	return "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"
}

// formatDuration formats a duration as MM:SS or HH:MM:SS for longer durations
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
