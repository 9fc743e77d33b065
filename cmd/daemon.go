package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/Techno-coder/pmu/internal/audio"
	"github.com/Techno-coder/pmu/internal/client"
	"github.com/Techno-coder/pmu/internal/config"
	"github.com/Techno-coder/pmu/internal/daemon"
	"github.com/Techno-coder/pmu/internal/discord"
	"github.com/Techno-coder/pmu/internal/scrobbler"
	"github.com/Techno-coder/pmu/pkg/lastfm"
)

const (
	loginTimeout = 5 * time.Second
	drainTimeout = 15 * time.Second
)

var daemonLogFile string

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the player daemon",
	Long: `Start the player daemon. This should not be used directly; every other
command starts the daemon when it is not running.

The daemon will:
- Listen for commands on 127.0.0.1:<port>
- Play queued songs one after another
- Exit when the queue runs out, unless loop_last is set
- Show the current song as Discord Rich Presence, if enabled
- Scrobble songs played longer than the threshold to Last.fm, if configured
- Handle graceful shutdown on SIGINT/SIGTERM

Logs go to daemon.log in the data directory. Use --log-file - to log to stderr.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&daemonLogFile, "log-file", "", "Log file path, - for stderr (default: <data-dir>/daemon.log)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	volumes := make(chan float64, 1)
	cfg, cfgErr := config.Watch(func(c *config.Config) {
		offerLatest(volumes, c.Volume)
	})

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var out io.Writer = os.Stderr
	closeLog := func() {}
	switch daemonLogFile {
	case "-":
	case "":
		out, closeLog = openLogFile(dataFile(cfg, logName))
	default:
		out, closeLog = openLogFile(daemonLogFile)
	}
	defer closeLog()
	logger := setupLogger(out, logLevel)

	if cfgErr != nil {
		logger.Warn().Err(cfgErr).Msg("Config error, using defaults")
	}

	// Bind before anything slow so clients waiting on the port connect quickly.
	ln, err := daemon.Listen(cfg.Port)
	if err != nil {
		logger.Error().Err(err).Int("port", cfg.Port).Msg("Failed to listen")
		return err
	}

	logger.Info().
		Str("version", version).
		Int("pid", os.Getpid()).
		Str("data_dir", cfg.DataDir).
		Msg("Starting pmu daemon")

	release, err := client.ClaimPID(dataFile(cfg, pidName))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to write pid file")
		release = func() {}
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var workers []<-chan struct{}

	var presence daemon.Presence
	if cfg.Discord.Enabled {
		cache, err := discord.OpenArtworkCache(dataFile(cfg, artworkDBName))
		if err != nil {
			logger.Warn().Err(err).Msg("Artwork cache unavailable, using memory only")
		} else {
			defer func(db *bolt.DB) { _ = db.Close() }(cache)
		}

		p := discord.New(cfg.Discord.AppID, cache, logger)
		go p.Run(ctx)
		presence = p
		workers = append(workers, p.Done())
	}

	var notifier daemon.Scrobbler
	if n, queue := startScrobbler(ctx, cfg, logger); n != nil {
		defer queue.Close()
		notifier = n
		workers = append(workers, n.Done())
	}

	d := daemon.New(daemon.Config{
		LoopLast:          cfg.LoopLast,
		Volume:            cfg.Volume,
		ScrobbleThreshold: cfg.LastFM.Threshold,
		StatusFile:        dataFile(cfg, statusName),
	}, audio.NewSpeaker(), presence, notifier, logger)

	go forwardVolume(d, volumes, cfg.Volume, logger)

	runErr := d.Run(ln)

	// The listener is closed, so let the next client start a new daemon
	// while this one is still flushing.
	release()
	cancel()
	drain(workers, logger)

	if runErr != nil {
		return fmt.Errorf("daemon error: %w", runErr)
	}
	return nil
}

// startScrobbler returns a running notifier, or nil when Last.fm is not
// configured or the login fails.
func startScrobbler(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*scrobbler.Notifier, *scrobbler.Queue) {
	if !cfg.LastFM.HasCredentials() {
		logger.Debug().Msg("Last.fm not configured, scrobbling disabled")
		return nil, nil
	}

	c, err := scrobbler.New(lastfm.Config{
		APIKey:     cfg.LastFM.APIKey,
		APISecret:  cfg.LastFM.APISecret,
		SessionKey: cfg.LastFM.SessionKey,
		UserAgent:  "pmu/" + version,
		Logger:     lastfmLogger{logger.With().Str("component", "lastfm").Logger()},
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Scrobbling disabled")
		return nil, nil
	}

	if !c.IsAuthenticated() {
		loginCtx, cancel := context.WithTimeout(ctx, loginTimeout)
		defer cancel()
		if _, err := c.Login(loginCtx, cfg.LastFM.Username, cfg.LastFM.Password); err != nil {
			logger.Warn().Err(err).Msg("Last.fm login failed, scrobbling disabled")
			return nil, nil
		}
	}

	queue, err := scrobbler.NewQueue(dataFile(cfg, scrobbleDBName))
	if err != nil {
		logger.Warn().Err(err).Msg("Scrobble queue unavailable, scrobbling disabled")
		return nil, nil
	}

	n := scrobbler.NewNotifier(c, queue, logger)
	go n.Run(ctx)
	return n, queue
}

// forwardVolume applies volume changes from the config file until the
// daemon stops.
func forwardVolume(d *daemon.Daemon, volumes <-chan float64, current float64, logger zerolog.Logger) {
	for {
		select {
		case <-d.Done():
			return
		case v := <-volumes:
			if v == current {
				continue
			}
			current = v
			logger.Info().Float64("volume", v).Msg("Config changed, updating volume")
			d.Send(daemon.Volume(v))
		}
	}
}

// offerLatest puts v in the single-slot channel ch, replacing any value
// not yet received.
func offerLatest(ch chan float64, v float64) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// drain waits for the notifier workers to flush.
func drain(workers []<-chan struct{}, logger zerolog.Logger) {
	timeout := time.After(drainTimeout)
	for _, done := range workers {
		select {
		case <-done:
		case <-timeout:
			logger.Warn().Msg("Timed out waiting for notifiers to finish")
			return
		}
	}
}

// lastfmLogger routes Last.fm client debug output into zerolog.
type lastfmLogger struct {
	logger zerolog.Logger
}

func (l lastfmLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}
