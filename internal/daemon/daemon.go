package daemon

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Techno-coder/pmu/internal/audio"
	"github.com/Techno-coder/pmu/internal/metadata"
	"github.com/rs/zerolog"
)

// Config holds daemon configuration
type Config struct {
	LoopLast          bool          // Replay the last song when the queue runs out
	Volume            float64       // Initial playback gain
	ScrobbleThreshold time.Duration // Minimum play time before a song is scrobbled
	StatusFile        string        // Path to the status snapshot, empty to disable
}

// Presence receives now playing updates for a status service.
// Implementations must not block and must swallow their own failures.
type Presence interface {
	SetSong(meta metadata.Metadata, start time.Time)
	Clear()
}

// Scrobbler receives song lifecycle events for a listening history service.
// Implementations must not block and must swallow their own failures.
type Scrobbler interface {
	NowPlaying(meta metadata.Metadata)
	Scrobble(meta metadata.Metadata, startedAt time.Time, elapsed time.Duration)
}

type nopPresence struct{}

func (nopPresence) SetSong(metadata.Metadata, time.Time) {}
func (nopPresence) Clear()                                {}

type nopScrobbler struct{}

func (nopScrobbler) NowPlaying(metadata.Metadata)                            {}
func (nopScrobbler) Scrobble(metadata.Metadata, time.Time, time.Duration) {}

// Daemon owns the playback queue and the current song. All state changes
// happen on the goroutine running Serve, one command at a time.
type Daemon struct {
	config    Config
	backend   audio.Backend
	presence  Presence
	scrobbler Scrobbler
	resolve   func(path string) metadata.Metadata
	now       func() time.Time
	status    statusFile
	logger    zerolog.Logger

	events chan Command
	done   chan struct{}

	// Owned by the Serve goroutine.
	queue  []string
	song   *CurrentSong
	gen    uint64
	volume float64
}

// New creates a new Daemon instance. A nil presence or scrobbler disables
// that notifier.
func New(cfg Config, backend audio.Backend, presence Presence, scrobbler Scrobbler, logger zerolog.Logger) *Daemon {
	if presence == nil {
		presence = nopPresence{}
	}
	if scrobbler == nil {
		scrobbler = nopScrobbler{}
	}

	return &Daemon{
		config:    cfg,
		backend:   backend,
		presence:  presence,
		scrobbler: scrobbler,
		resolve:   metadata.Find,
		now:       time.Now,
		status:    statusFile{path: cfg.StatusFile},
		logger:    logger.With().Str("component", "daemon").Logger(),
		events:    make(chan Command, 16),
		done:      make(chan struct{}),
		volume:    cfg.Volume,
	}
}

// Run serves commands from ln and blocks until a stop command, an exhausted
// queue, or a shutdown signal.
func (d *Daemon) Run(ln net.Listener) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-d.done:
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		select {
		case <-sigChan:
			d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
			os.Exit(1)
		case <-d.done:
		}
	}()

	return d.Serve(ctx, ln)
}

// Serve runs the core loop until it terminates or ctx is cancelled. If ln is
// non-nil, commands are accepted from it and it is closed on return.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	if ln != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.listen(ln)
		}()
		d.logger.Info().Str("addr", ln.Addr().String()).Msg("Listening for commands")
	}

	d.writeStatus()
	d.loop(ctx)

	close(d.done)
	if ln != nil {
		_ = ln.Close()
	}
	d.shutdown()
	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Send delivers cmd to the core loop. It reports false if the daemon has
// already stopped.
func (d *Daemon) Send(cmd Command) bool {
	select {
	case d.events <- cmd:
		return true
	case <-d.done:
		return false
	}
}

// Done is closed once the core loop has exited.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

func (d *Daemon) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-d.events:
			d.logger.Debug().Stringer("command", cmd).Msg("Received command")
			if !d.handle(cmd) {
				return
			}
			d.writeStatus()
		}
	}
}

// handle applies a single command. It returns false when the loop must end.
func (d *Daemon) handle(cmd Command) bool {
	switch cmd.Kind {
	case KindStop:
		return false
	case KindPause:
		d.togglePause()
	case KindPlay:
		return d.enqueue(cmd.Path, cmd.Now)
	case KindSkip:
		d.skip()
	case KindNext:
		return d.next(cmd.gen)
	case KindVolume:
		d.setVolume(cmd.Level)
	default:
		d.logger.Warn().Str("kind", string(cmd.Kind)).Msg("Ignoring unknown command")
	}
	return true
}

func (d *Daemon) enqueue(path string, now bool) bool {
	if now {
		d.queue = append(d.queue[:0], path)
		d.skip()
	} else {
		d.queue = append(d.queue, path)
	}

	d.logger.Info().
		Str("path", path).
		Bool("now", now).
		Int("queued", len(d.queue)).
		Msg("Song queued")

	// Nothing is playing yet, so nothing will complete and advance.
	if d.song == nil {
		return d.next(0)
	}
	return true
}

func (d *Daemon) togglePause() {
	song := d.song
	if song == nil || song.stopped {
		return
	}

	now := d.now()
	if song.Handle.IsPaused() {
		song.Handle.Play()
		song.thaw(now)
		d.presence.SetSong(song.Metadata, now.Add(-song.Elapsed(now)))
		d.logger.Info().Str("path", song.Path).Dur("elapsed", song.Elapsed(now)).Msg("Resumed")
		return
	}

	song.Handle.Pause()
	song.freeze(now)
	d.presence.Clear()
	d.logger.Info().Str("path", song.Path).Dur("elapsed", song.Elapsed(now)).Msg("Paused")
}

// skip stops the current song. Its completion watcher then sends next.
func (d *Daemon) skip() {
	song := d.song
	if song == nil || song.stopped {
		return
	}

	song.freeze(d.now())
	song.stopped = true
	song.Handle.Stop()
	d.logger.Info().Str("path", song.Path).Msg("Skipped")
}

// next retires the current song and starts the head of the queue. A non-zero
// gen names the song whose completion triggered it; if that song is no
// longer current the command is stale and ignored.
func (d *Daemon) next(gen uint64) bool {
	if gen != 0 && (d.song == nil || d.song.gen != gen) {
		d.logger.Debug().Uint64("gen", gen).Msg("Ignoring stale completion")
		return true
	}

	var previous string
	if d.song != nil {
		previous = d.song.Path
		d.retire()
	}

	for {
		var path string
		switch {
		case len(d.queue) > 0:
			path = d.queue[0]
			d.queue = d.queue[1:]
		case d.config.LoopLast && previous != "":
			path = previous
		default:
			d.logger.Info().Msg("Queue finished")
			return false
		}

		if err := d.start(path); err != nil {
			d.logger.Error().Err(err).Str("path", path).Msg("Failed to load song, skipping")
			if path == previous {
				// Replaying a song that no longer loads would spin forever.
				previous = ""
			}
			continue
		}
		return true
	}
}

func (d *Daemon) start(path string) error {
	h, err := d.backend.Load(path)
	if err != nil {
		return err
	}
	h.SetVolume(d.volume)

	d.gen++
	meta := d.resolve(path)
	now := d.now()
	song := newSong(path, h, meta, d.gen, now)
	d.song = song

	h.Play()
	go d.watch(h, song.gen)

	d.logger.Info().
		Str("path", path).
		Str("artist", meta.Artist).
		Str("title", meta.Title).
		Uint64("gen", song.gen).
		Msg("Song started")

	d.scrobbler.NowPlaying(meta)
	d.presence.SetSong(meta, now)
	return nil
}

// retire stops the current song for good and scrobbles it if it was played
// long enough.
func (d *Daemon) retire() {
	song := d.song
	d.song = nil

	now := d.now()
	song.freeze(now)
	if !song.stopped {
		song.stopped = true
		song.Handle.Stop()
	}

	elapsed := song.Elapsed(now)
	eligible := elapsed >= d.config.ScrobbleThreshold
	d.logger.Info().
		Str("path", song.Path).
		Dur("elapsed", elapsed).
		Bool("scrobble", eligible).
		Msg("Song retired")

	if eligible {
		d.scrobbler.Scrobble(song.Metadata, song.StartedAt, elapsed)
	}
}

func (d *Daemon) setVolume(level float64) {
	d.volume = level
	if d.song != nil {
		d.song.Handle.SetVolume(level)
	}
	d.logger.Info().Float64("volume", level).Msg("Volume changed")
}

func (d *Daemon) shutdown() {
	if d.song != nil {
		d.retire()
	}
	d.presence.Clear()

	if err := d.status.remove(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to remove status file")
	}
}

func (d *Daemon) snapshot() Status {
	s := Status{
		State:     StateIdle,
		QueueLen:  len(d.queue),
		Volume:    d.volume,
		UpdatedAt: d.now(),
	}
	if song := d.song; song != nil {
		s.Path = song.Path
		s.Artist = song.Metadata.Artist
		s.Title = song.Metadata.Title
		s.Album = song.Metadata.Album
		s.Elapsed = song.Elapsed(s.UpdatedAt)
		s.StartedAt = song.StartedAt
		s.State = StatePlaying
		if song.Paused() {
			s.State = StatePaused
		}
	}
	return s
}

func (d *Daemon) writeStatus() {
	if err := d.status.write(d.snapshot()); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to write status file")
	}
}
