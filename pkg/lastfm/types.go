package lastfm

import (
	"time"
)

// Track describes a track for scrobbling or now playing updates.
type Track struct {
	Artist   string // Required
	Track    string // Required
	Album    string // Optional
	Duration int    // Optional: seconds
}

// Scrobble is a single play of a track.
type Scrobble struct {
	Track     Track
	Timestamp time.Time // When the track started playing
}

// Token is an unauthorized request token from auth.getToken.
type Token struct {
	Token string
}

// Session is an authenticated session from auth.getSession or auth.getMobileSession.
type Session struct {
	Key        string
	Username   string
	Subscriber bool
}

// IgnoredMessage explains why Last.fm dropped a submission. Code 0 means accepted.
type IgnoredMessage struct {
	Code int
	Text string
}

// NowPlayingResponse is the response from track.updateNowPlaying.
type NowPlayingResponse struct {
	Artist  string
	Track   string
	Album   string
	Ignored IgnoredMessage
}

// ScrobbleResult is the per-track part of a track.scrobble response.
type ScrobbleResult struct {
	Artist    string
	Track     string
	Album     string
	Timestamp int64
	Ignored   IgnoredMessage
}

// ScrobbleResponse is the response from track.scrobble.
type ScrobbleResponse struct {
	Accepted int
	Ignored  int
	Results  []ScrobbleResult
}
