package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// PlayState is the playback state reported in the status file.
type PlayState string

const (
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
	StateIdle    PlayState = "idle"
)

// Status is a snapshot of the daemon written after every transition, so
// other processes can show what is playing without talking to the daemon.
type Status struct {
	Path      string        `json:"path,omitempty"`
	Artist    string        `json:"artist,omitempty"`
	Title     string        `json:"title,omitempty"`
	Album     string        `json:"album,omitempty"`
	State     PlayState     `json:"state"`
	Elapsed   time.Duration `json:"elapsed"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	QueueLen  int           `json:"queue_len"`
	Volume    float64       `json:"volume"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ElapsedAt extrapolates the elapsed time to now for a playing song.
func (s *Status) ElapsedAt(now time.Time) time.Duration {
	if s.State != StatePlaying || now.Before(s.UpdatedAt) {
		return s.Elapsed
	}
	return s.Elapsed + now.Sub(s.UpdatedAt)
}

// ReadStatus loads the status file at path.
func ReadStatus(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// statusFile persists Status snapshots. An empty path disables it.
type statusFile struct {
	path string
}

// write saves s atomically via temp file and rename.
func (f statusFile) write(s Status) error {
	if f.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, f.path)
}

func (f statusFile) remove() error {
	if f.path == "" {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
