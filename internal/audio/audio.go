// Package audio decodes local files and plays them through the system speaker.
package audio

import (
	"errors"
	"math"
)

var (
	// ErrUnsupportedFormat is returned when a file extension has no decoder.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrAudioUnavailable is returned by builds without a native audio output.
	ErrAudioUnavailable = errors.New("audio playback is not available in this build")
)

// Backend loads songs for playback.
type Backend interface {
	// Load decodes the file at path. The returned handle is idle until Play.
	Load(path string) (Handle, error)
}

// Handle controls a single loaded song.
type Handle interface {
	// Play starts or resumes output.
	Play()
	// Pause suspends output, keeping the position.
	Pause()
	// Stop ends output permanently. Done is closed shortly after.
	Stop()
	IsPaused() bool
	// SetVolume sets the gain, where 1.0 is the file's own level and 0 is silent.
	SetVolume(level float64)
	// Done is closed once the song finishes or is stopped.
	Done() <-chan struct{}
}

// gain converts a linear volume level into the exponent used by a base 2
// volume effect. Levels at or below zero are reported as silent.
func gain(level float64) (exponent float64, silent bool) {
	if level <= 0 {
		return 0, true
	}
	return math.Log2(level), false
}
