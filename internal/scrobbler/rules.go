package scrobbler

import (
	"strings"
	"time"

	"github.com/Techno-coder/pmu/internal/metadata"
	"github.com/Techno-coder/pmu/pkg/lastfm"
	"github.com/samber/lo"
)

// MaxAge is the oldest play Last.fm still accepts. Pending plays older than
// this are dropped from the queue.
const MaxAge = 14 * 24 * time.Hour

// Scrobble represents a single play to submit
type Scrobble struct {
	Artist    string
	Track     string
	Album     string
	StartedAt time.Time
	Played    time.Duration // Time actually listened, pauses excluded
}

// Known reports whether meta names both an artist and a title. Last.fm
// rejects plays without them, so songs identified only by file name are
// never sent.
func Known(meta metadata.Metadata) bool {
	return lo.EveryBy([]string{meta.Artist, meta.Title}, func(s string) bool {
		return strings.TrimSpace(s) != ""
	})
}

// FromMetadata builds the play record for a song that started at startedAt.
func FromMetadata(meta metadata.Metadata, startedAt time.Time, played time.Duration) Scrobble {
	return Scrobble{
		Artist:    strings.TrimSpace(meta.Artist),
		Track:     strings.TrimSpace(meta.Title),
		Album:     strings.TrimSpace(meta.Album),
		StartedAt: startedAt,
		Played:    played,
	}
}

// Expired reports whether s is too old for Last.fm to accept at now.
func (s Scrobble) Expired(now time.Time) bool {
	return now.Sub(s.StartedAt) > MaxAge
}

func (s Scrobble) track() lastfm.Track {
	return lastfm.Track{
		Artist: s.Artist,
		Track:  s.Track,
		Album:  s.Album,
	}
}
