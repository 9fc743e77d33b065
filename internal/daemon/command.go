package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrUnknownCommand is returned when a message names no known command.
var ErrUnknownCommand = errors.New("unknown command")

// Kind identifies a command on the wire.
type Kind string

const (
	KindStop   Kind = "stop"
	KindPause  Kind = "pause"
	KindPlay   Kind = "play"
	KindSkip   Kind = "skip"
	KindNext   Kind = "next"
	KindVolume Kind = "volume"
)

// Command is a single message to the daemon. Only the fields relevant to
// Kind are set: Path and Now for play, Level for volume.
type Command struct {
	Kind  Kind    `json:"type"`
	Path  string  `json:"path,omitempty"`
	Now   bool    `json:"now,omitempty"`
	Level float64 `json:"level,omitempty"`

	// gen ties a completion-driven next to the song that finished.
	// Zero means the next was requested directly and always applies.
	gen uint64
}

// Play returns a command that queues path, or replaces the queue and
// starts path immediately when now is set.
func Play(path string, now bool) Command {
	return Command{Kind: KindPlay, Path: path, Now: now}
}

// Volume returns a command that sets the playback gain.
func Volume(level float64) Command {
	return Command{Kind: KindVolume, Level: level}
}

func (c Command) String() string {
	switch c.Kind {
	case KindPlay:
		return fmt.Sprintf("play(%s, now=%t)", c.Path, c.Now)
	case KindVolume:
		return fmt.Sprintf("volume(%.2f)", c.Level)
	case KindNext:
		if c.gen != 0 {
			return fmt.Sprintf("next(gen=%d)", c.gen)
		}
	}
	return string(c.Kind)
}

// Validate checks that c is a well formed command.
func (c Command) Validate() error {
	switch c.Kind {
	case KindStop, KindPause, KindSkip, KindNext:
		return nil
	case KindPlay:
		if c.Path == "" {
			return errors.New("play command requires a path")
		}
		return nil
	case KindVolume:
		if c.Level < 0 {
			return fmt.Errorf("volume must not be negative: %v", c.Level)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Kind)
}

// Encode writes c as a single JSON object.
func Encode(w io.Writer, c Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	return nil
}

// Decode reads one command from r.
func Decode(r io.Reader) (Command, error) {
	var c Command
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}
