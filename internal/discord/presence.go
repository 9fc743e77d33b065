// Package discord shows the current song as Discord Rich Presence.
package discord

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	bolt "go.etcd.io/bbolt"

	"github.com/Techno-coder/pmu/internal/metadata"
)

const (
	unknownArtist = "Unknown Artist"
	unknownTitle  = "Unknown Title"
	defaultImage  = "icon"
	largeText     = "pmu"
)

type rpcClient interface {
	SetActivity(*Activity) error
	Close() error
}

// update is a pending presence change. A nil song clears the activity.
type update struct {
	song  *metadata.Metadata
	start time.Time
}

// Presence manages Discord Rich Presence updates. SetSong and Clear never
// block. Only the latest update is kept while the worker is busy, so the
// worker always ends up applying the most recent state.
type Presence struct {
	appID   string
	logger  zerolog.Logger
	client  rpcClient
	connect func(string) (rpcClient, error)
	last    *Activity
	artwork *artworkLookup

	mu      sync.Mutex
	pending *update
	wake    chan struct{}
	done    chan struct{}
}

// New creates a Presence. cache may be nil to keep artwork lookups in memory only.
func New(appID string, cache *bolt.DB, logger zerolog.Logger) *Presence {
	artwork := newArtworkLookup()
	artwork.db = cache

	return &Presence{
		appID:  appID,
		logger: logger.With().Str("component", "discord").Logger(),
		connect: func(appID string) (rpcClient, error) {
			return ipcConnect(appID)
		},
		artwork: artwork,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// SetSong shows meta as playing since start.
func (p *Presence) SetSong(meta metadata.Metadata, start time.Time) {
	p.enqueue(update{song: &meta, start: start})
}

// Clear removes the activity.
func (p *Presence) Clear() {
	p.enqueue(update{})
}

func (p *Presence) enqueue(u update) {
	p.mu.Lock()
	if p.pending != nil {
		p.logger.Debug().Msg("Presence update superseded")
	}
	p.pending = &u
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// take returns the pending update, if any, and empties the slot.
func (p *Presence) take() (update, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return update{}, false
	}
	u := *p.pending
	p.pending = nil
	return u, true
}

// Run applies updates until ctx is cancelled. A pending update is applied
// before it returns, and the activity is left cleared. Connects lazily on
// first song. If Discord isn't running, logs the error and retries on the
// next update.
func (p *Presence) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.handle(update{})
			p.close()
			return
		case <-p.wake:
			if u, ok := p.take(); ok {
				p.handle(u)
			}
		}
	}
}

// Done is closed once Run has returned.
func (p *Presence) Done() <-chan struct{} {
	return p.done
}

func (p *Presence) drain() {
	if u, ok := p.take(); ok {
		p.handle(u)
	}
}

func (p *Presence) handle(u update) {
	if u.song == nil {
		if p.last != nil {
			p.clearActivity()
			p.last = nil
		}
		return
	}

	activity := p.activity(*u.song, u.start)
	if p.last != nil && sameActivity(p.last, activity) {
		return
	}

	if err := p.ensureConnected(); err != nil {
		p.logger.Warn().Err(err).Msg("Discord not available")
		return
	}

	if err := p.client.SetActivity(activity); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to set activity")
		p.close()
		return
	}
	p.last = activity
}

func (p *Presence) activity(meta metadata.Metadata, start time.Time) *Activity {
	startUnix := start.Unix()

	largeImage := defaultImage
	if p.artwork != nil {
		if art := p.artwork.Lookup(meta); art != "" {
			largeImage = art
		}
	}

	a := &Activity{
		Type:    2, // Listening
		Details: lo.CoalesceOrEmpty(meta.Artist, unknownArtist),
		State:   lo.CoalesceOrEmpty(meta.Title, unknownTitle),
		Timestamps: &Timestamps{
			Start: &startUnix,
		},
		Assets: &Assets{
			LargeImage: largeImage,
			LargeText:  lo.CoalesceOrEmpty(meta.Album, largeText),
		},
	}
	if meta.Origin != nil {
		a.Buttons = []Button{{Label: meta.Origin.Name, URL: meta.Origin.Link}}
	}
	return a
}

func sameActivity(a, b *Activity) bool {
	return a.Details == b.Details &&
		a.State == b.State &&
		*a.Timestamps.Start == *b.Timestamps.Start
}

func (p *Presence) ensureConnected() error {
	if p.client != nil {
		return nil
	}
	client, err := p.connect(p.appID)
	if err != nil {
		return err
	}
	p.logger.Info().Msg("Connected to Discord")
	p.client = client
	return nil
}

func (p *Presence) clearActivity() {
	if p.client == nil {
		return
	}
	if err := p.client.SetActivity(nil); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to clear activity")
		p.close()
	}
}

func (p *Presence) close() {
	if p.client == nil {
		return
	}
	_ = p.client.Close()
	p.client = nil
}
