package lastfm

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// ScrobbleService provides scrobbling operations for the Last.fm API.
type ScrobbleService struct {
	client *Client
}

// MaxBatchSize is the maximum number of scrobbles accepted by one track.scrobble call.
const MaxBatchSize = 50

type ignoredXML struct {
	Code int    `xml:"code,attr"`
	Text string `xml:",chardata"`
}

func (i ignoredXML) message() IgnoredMessage {
	return IgnoredMessage{Code: i.Code, Text: i.Text}
}

// UpdateNowPlaying tells Last.fm that track has started playing. It does
// not count as a scrobble.
func (s *ScrobbleService) UpdateNowPlaying(ctx context.Context, track Track) (*NowPlayingResponse, error) {
	params := map[string]string{
		"artist": track.Artist,
		"track":  track.Track,
	}
	if track.Album != "" {
		params["album"] = track.Album
	}
	if track.Duration > 0 {
		params["duration"] = strconv.Itoa(track.Duration)
	}

	inner, err := s.client.call(ctx, "track.updateNowPlaying", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Artist  string     `xml:"nowplaying>artist"`
		Track   string     `xml:"nowplaying>track"`
		Album   string     `xml:"nowplaying>album"`
		Ignored ignoredXML `xml:"nowplaying>ignoredMessage"`
	}
	if err := decodeInner(inner, &resp); err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse now playing response: %w", err)
	}

	return &NowPlayingResponse{
		Artist:  resp.Artist,
		Track:   resp.Track,
		Album:   resp.Album,
		Ignored: resp.Ignored.message(),
	}, nil
}

// Scrobble submits a single play that started at timestamp.
func (s *ScrobbleService) Scrobble(ctx context.Context, track Track, timestamp time.Time) (*ScrobbleResponse, error) {
	return s.ScrobbleBatch(ctx, []Scrobble{{Track: track, Timestamp: timestamp}})
}

// ScrobbleBatch submits up to MaxBatchSize plays in one request. Extra
// entries are not sent.
func (s *ScrobbleService) ScrobbleBatch(ctx context.Context, scrobbles []Scrobble) (*ScrobbleResponse, error) {
	if s.client.sessionKey == "" {
		return nil, ErrNoSessionKey
	}
	if len(scrobbles) == 0 {
		return &ScrobbleResponse{}, nil
	}
	if len(scrobbles) > MaxBatchSize {
		scrobbles = scrobbles[:MaxBatchSize]
	}

	params := make(map[string]string, len(scrobbles)*5)
	for i, sc := range scrobbles {
		idx := "[" + strconv.Itoa(i) + "]"
		params["artist"+idx] = sc.Track.Artist
		params["track"+idx] = sc.Track.Track
		params["timestamp"+idx] = strconv.FormatInt(sc.Timestamp.Unix(), 10)
		if sc.Track.Album != "" {
			params["album"+idx] = sc.Track.Album
		}
		if sc.Track.Duration > 0 {
			params["duration"+idx] = strconv.Itoa(sc.Track.Duration)
		}
	}

	inner, err := s.client.call(ctx, "track.scrobble", params, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Scrobbles struct {
			Accepted int `xml:"accepted,attr"`
			Ignored  int `xml:"ignored,attr"`
			Items    []struct {
				Artist    string     `xml:"artist"`
				Track     string     `xml:"track"`
				Album     string     `xml:"album"`
				Timestamp int64      `xml:"timestamp"`
				Ignored   ignoredXML `xml:"ignoredMessage"`
			} `xml:"scrobble"`
		} `xml:"scrobbles"`
	}
	if err := decodeInner(inner, &resp); err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse scrobble response: %w", err)
	}

	out := &ScrobbleResponse{
		Accepted: resp.Scrobbles.Accepted,
		Ignored:  resp.Scrobbles.Ignored,
		Results:  make([]ScrobbleResult, 0, len(resp.Scrobbles.Items)),
	}
	for _, item := range resp.Scrobbles.Items {
		out.Results = append(out.Results, ScrobbleResult{
			Artist:    item.Artist,
			Track:     item.Track,
			Album:     item.Album,
			Timestamp: item.Timestamp,
			Ignored:   item.Ignored.message(),
		})
	}
	return out, nil
}
