package daemon

import (
	"time"

	"github.com/Techno-coder/pmu/internal/audio"
	"github.com/Techno-coder/pmu/internal/metadata"
)

// CurrentSong is the song owned by the core loop. Only the loop mutates it.
type CurrentSong struct {
	Path     string
	Handle   audio.Handle
	Metadata metadata.Metadata

	// StartedAt is when playback of this song first began.
	StartedAt time.Time

	gen uint64

	// lastElapsed is the play time committed before lastResume.
	lastElapsed time.Duration
	lastResume  time.Time
	frozen      bool

	// stopped is set once the handle was told to stop.
	stopped bool
}

func newSong(path string, h audio.Handle, meta metadata.Metadata, gen uint64, now time.Time) *CurrentSong {
	return &CurrentSong{
		Path:       path,
		Handle:     h,
		Metadata:   meta,
		StartedAt:  now,
		gen:        gen,
		lastResume: now,
	}
}

// Elapsed returns the total play time as of now. It does not modify the song.
func (s *CurrentSong) Elapsed(now time.Time) time.Duration {
	if s.frozen {
		return s.lastElapsed
	}
	running := now.Sub(s.lastResume)
	if running < 0 {
		running = 0
	}
	return s.lastElapsed + running
}

// freeze commits the elapsed time so far and stops the clock.
// Freezing an already frozen song has no effect.
func (s *CurrentSong) freeze(now time.Time) {
	if s.frozen {
		return
	}
	s.lastElapsed = s.Elapsed(now)
	s.frozen = true
}

// thaw restarts the clock from now.
func (s *CurrentSong) thaw(now time.Time) {
	if !s.frozen {
		return
	}
	s.lastResume = now
	s.frozen = false
}

// Paused reports whether the clock is stopped.
func (s *CurrentSong) Paused() bool {
	return s.frozen
}
