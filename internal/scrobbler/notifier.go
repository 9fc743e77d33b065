// Package scrobbler reports played songs to Last.fm. Plays are queued in
// SQLite first so that none are lost while Last.fm is unreachable.
package scrobbler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Techno-coder/pmu/internal/metadata"
	"github.com/Techno-coder/pmu/pkg/lastfm"
)

const (
	// DefaultRetryInterval is how often pending plays are resubmitted.
	DefaultRetryInterval = 5 * time.Minute

	requestTimeout = 15 * time.Second
	flushTimeout   = 10 * time.Second
	keepSubmitted  = 30 * 24 * time.Hour
)

// Service submits plays to a listening history service. *Client implements it.
type Service interface {
	UpdateNowPlaying(ctx context.Context, s Scrobble) error
	Submit(ctx context.Context, scrobbles []Scrobble) ([]string, error)
}

type event struct {
	play       Scrobble
	nowPlaying bool
}

// Notifier forwards song events from the daemon to a Service. NowPlaying and
// Scrobble never block; events are handled in order on the goroutine running
// Run.
type Notifier struct {
	service Service
	queue   *Queue
	logger  zerolog.Logger
	retry   time.Duration
	events  chan event
	done    chan struct{}
}

// NewNotifier creates a Notifier that stores plays in queue before
// submitting them through service.
func NewNotifier(service Service, queue *Queue, logger zerolog.Logger) *Notifier {
	return &Notifier{
		service: service,
		queue:   queue,
		logger:  logger.With().Str("component", "scrobbler").Logger(),
		retry:   DefaultRetryInterval,
		events:  make(chan event, 64),
		done:    make(chan struct{}),
	}
}

// NowPlaying reports meta as the song that just started.
func (n *Notifier) NowPlaying(meta metadata.Metadata) {
	if !Known(meta) {
		return
	}
	n.enqueue(event{play: FromMetadata(meta, time.Time{}, 0), nowPlaying: true})
}

// Scrobble records a finished play of meta.
func (n *Notifier) Scrobble(meta metadata.Metadata, startedAt time.Time, elapsed time.Duration) {
	if !Known(meta) {
		n.logger.Debug().Str("title", meta.Title).Msg("Not scrobbling song without artist and title")
		return
	}
	n.enqueue(event{play: FromMetadata(meta, startedAt, elapsed)})
}

func (n *Notifier) enqueue(e event) {
	select {
	case n.events <- e:
	default:
		n.logger.Warn().
			Str("artist", e.play.Artist).
			Str("track", e.play.Track).
			Bool("now_playing", e.nowPlaying).
			Msg("Scrobble event dropped, worker busy")
	}
}

// Run handles events until ctx is cancelled, resubmitting pending plays
// every retry interval. On cancellation queued events are stored, one last
// submission is attempted and old entries are pruned before it returns.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.done)

	ticker := time.NewTicker(n.retry)
	defer ticker.Stop()

	n.flush(ctx)
	for {
		select {
		case <-ctx.Done():
			n.shutdown()
			return
		case e := <-n.events:
			n.handle(ctx, e)
		case <-ticker.C:
			n.flush(ctx)
		}
	}
}

// Done is closed once Run has returned.
func (n *Notifier) Done() <-chan struct{} {
	return n.done
}

func (n *Notifier) handle(ctx context.Context, e event) {
	if e.nowPlaying {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		if err := n.service.UpdateNowPlaying(reqCtx, e.play); err != nil {
			n.logger.Warn().Err(err).Str("track", e.play.Track).Msg("Failed to update now playing")
		}
		return
	}

	if !n.store(ctx, e.play) {
		return
	}
	n.flush(ctx)
}

// store writes s to the queue. The write is not abandoned on shutdown.
func (n *Notifier) store(ctx context.Context, s Scrobble) bool {
	id, err := n.queue.Add(context.WithoutCancel(ctx), s)
	if err != nil {
		n.logger.Error().Err(err).Str("track", s.Track).Msg("Failed to queue scrobble")
		return false
	}
	n.logger.Debug().Int64("id", id).Str("artist", s.Artist).Str("track", s.Track).Msg("Scrobble queued")
	return true
}

// flush submits pending plays in batches until the queue is empty or a
// submission fails.
func (n *Notifier) flush(ctx context.Context) {
	for {
		pending, err := n.queue.Pending(ctx, lastfm.MaxBatchSize)
		if err != nil {
			n.logger.Error().Err(err).Msg("Failed to read scrobble queue")
			return
		}
		if len(pending) == 0 {
			return
		}
		if !n.submit(ctx, pending) || len(pending) < lastfm.MaxBatchSize {
			return
		}
	}
}

func (n *Notifier) submit(ctx context.Context, pending []Entry) bool {
	now := time.Now()
	fresh := pending[:0:0]
	for _, e := range pending {
		if !e.Expired(now) {
			fresh = append(fresh, e)
			continue
		}
		n.logger.Warn().Str("track", e.Track).Time("started_at", e.StartedAt).Msg("Dropping scrobble too old for Last.fm")
		if err := n.queue.MarkSubmitted(ctx, "expired", e.ID); err != nil {
			n.logger.Error().Err(err).Msg("Failed to update scrobble queue")
			return false
		}
	}
	if len(fresh) == 0 {
		return true
	}
	pending = fresh

	plays := make([]Scrobble, len(pending))
	ids := make([]int64, len(pending))
	for i, e := range pending {
		plays[i] = e.Scrobble
		ids[i] = e.ID
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	ignored, err := n.service.Submit(reqCtx, plays)
	if err != nil {
		logEvent := n.logger.Warn()
		if lastfm.IsAuthError(err) {
			logEvent = n.logger.Error().Str("hint", "run `pmu auth` to refresh the session")
		}
		logEvent.Err(err).Int("pending", len(pending)).Msg("Failed to submit scrobbles, will retry")

		if markErr := n.queue.MarkFailed(context.WithoutCancel(ctx), err.Error(), ids...); markErr != nil {
			n.logger.Error().Err(markErr).Msg("Failed to record scrobble failure")
		}
		return false
	}

	var accepted []int64
	for i, e := range pending {
		if i < len(ignored) && ignored[i] != "" {
			n.logger.Warn().Str("track", e.Track).Str("reason", ignored[i]).Msg("Scrobble ignored by Last.fm")
			if err := n.queue.MarkSubmitted(ctx, ignored[i], e.ID); err != nil {
				n.logger.Error().Err(err).Msg("Failed to update scrobble queue")
			}
			continue
		}
		accepted = append(accepted, e.ID)
	}
	if err := n.queue.MarkSubmitted(ctx, "", accepted...); err != nil {
		n.logger.Error().Err(err).Msg("Failed to update scrobble queue")
		return false
	}

	n.logger.Info().Int("accepted", len(accepted)).Int("ignored", len(pending)-len(accepted)).Msg("Scrobbles submitted")
	return true
}

func (n *Notifier) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	n.drain(ctx)
	n.flush(ctx)

	deleted, err := n.queue.Prune(ctx, keepSubmitted)
	switch {
	case err != nil:
		n.logger.Warn().Err(err).Msg("Failed to prune scrobble queue")
	case deleted > 0:
		n.logger.Debug().Int64("deleted", deleted).Msg("Pruned scrobble queue")
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		n.logger.Warn().Msg("Scrobble flush timed out, pending plays kept for next start")
	}
}

// drain stores queued plays. Now playing updates are stale by now.
func (n *Notifier) drain(ctx context.Context) {
	for {
		select {
		case e := <-n.events:
			if !e.nowPlaying {
				n.store(ctx, e.play)
			}
		default:
			return
		}
	}
}
