package scrobbler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Techno-coder/pmu/internal/metadata"
)

type fakeService struct {
	mu         sync.Mutex
	nowPlaying []Scrobble
	submitted  [][]Scrobble
	err        error
	ignore     map[string]string // track -> reason
	calls      chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{calls: make(chan struct{}, 64)}
}

func (f *fakeService) UpdateNowPlaying(ctx context.Context, s Scrobble) error {
	f.mu.Lock()
	f.nowPlaying = append(f.nowPlaying, s)
	f.mu.Unlock()
	f.calls <- struct{}{}
	return nil
}

func (f *fakeService) Submit(ctx context.Context, scrobbles []Scrobble) ([]string, error) {
	f.mu.Lock()
	defer func() {
		f.mu.Unlock()
		f.calls <- struct{}{}
	}()
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, append([]Scrobble(nil), scrobbles...))
	ignored := make([]string, len(scrobbles))
	for i, s := range scrobbles {
		ignored[i] = f.ignore[s.Track]
	}
	return ignored, nil
}

func (f *fakeService) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeService) submittedTracks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tracks []string
	for _, batch := range f.submitted {
		for _, s := range batch {
			tracks = append(tracks, s.Track)
		}
	}
	return tracks
}

func (f *fakeService) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for service call")
	}
}

func startNotifier(t *testing.T, svc *fakeService, queue *Queue) (*Notifier, context.CancelFunc) {
	t.Helper()
	n := NewNotifier(svc, queue, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go n.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-n.Done()
	})
	return n, cancel
}

func song(title string) metadata.Metadata {
	return metadata.Metadata{Artist: "Artist", Title: title, Album: "Album"}
}

func TestNotifier_NowPlaying(t *testing.T) {
	svc := newFakeService()
	n, _ := startNotifier(t, svc, createTestQueue(t))

	n.NowPlaying(song("Intro"))
	svc.wait(t)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.nowPlaying) != 1 || svc.nowPlaying[0].Track != "Intro" || svc.nowPlaying[0].Artist != "Artist" {
		t.Errorf("now playing = %+v", svc.nowPlaying)
	}
}

func TestNotifier_ScrobbleSubmitsAndMarks(t *testing.T) {
	svc := newFakeService()
	queue := createTestQueue(t)
	n, _ := startNotifier(t, svc, queue)

	start := time.Now().Add(-3 * time.Minute)
	n.Scrobble(song("Track"), start, 2*time.Minute)
	svc.wait(t)

	if got := svc.submittedTracks(); len(got) != 1 || got[0] != "Track" {
		t.Fatalf("submitted = %v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mustCount(t, queue, false) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("scrobble still pending after successful submission")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifier_SkipsUnknownSongs(t *testing.T) {
	svc := newFakeService()
	queue := createTestQueue(t)
	n, cancel := startNotifier(t, svc, queue)

	n.NowPlaying(metadata.Metadata{Title: "file-stem"})
	n.Scrobble(metadata.Metadata{Title: "file-stem"}, time.Now(), time.Hour)
	cancel()
	<-n.Done()

	if got := mustCount(t, queue, true); got != 0 {
		t.Errorf("expected nothing queued, got %d", got)
	}
	if len(svc.nowPlaying) != 0 || len(svc.submitted) != 0 {
		t.Errorf("service should not have been called")
	}
}

func TestNotifier_FailureKeepsPending(t *testing.T) {
	svc := newFakeService()
	svc.setErr(errors.New("network down"))
	queue := createTestQueue(t)
	n, cancel := startNotifier(t, svc, queue)

	n.Scrobble(song("Offline"), time.Now(), 3*time.Minute)
	svc.wait(t)
	cancel()
	<-n.Done()

	pending, err := queue.Pending(context.Background(), 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected scrobble to stay pending, got %d", len(pending))
	}
	if pending[0].Attempts < 1 || pending[0].Error != "network down" {
		t.Errorf("failure not recorded: %+v", pending[0])
	}
}

func TestNotifier_RetriesBacklogOnStart(t *testing.T) {
	queue := createTestQueue(t)
	mustAdd(t, queue, play("Backlog", time.Now().Add(-time.Hour)))

	svc := newFakeService()
	startNotifier(t, svc, queue)
	svc.wait(t)

	if got := svc.submittedTracks(); len(got) != 1 || got[0] != "Backlog" {
		t.Errorf("submitted = %v", got)
	}
}

func TestNotifier_RetriesOnInterval(t *testing.T) {
	queue := createTestQueue(t)
	svc := newFakeService()
	svc.setErr(errors.New("temporarily unavailable"))
	mustAdd(t, queue, play("Retry", time.Now().Add(-time.Hour)))

	n := NewNotifier(svc, queue, zerolog.Nop())
	n.retry = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-n.Done()
	}()
	go n.Run(ctx)

	svc.wait(t) // initial attempt fails
	svc.setErr(nil)

	deadline := time.Now().Add(2 * time.Second)
	for len(svc.submittedTracks()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("pending scrobble was never retried")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := svc.submittedTracks(); got[0] != "Retry" {
		t.Errorf("submitted = %v", got)
	}
}

func TestNotifier_IgnoredAndExpiredAreNotRetried(t *testing.T) {
	queue := createTestQueue(t)
	mustAdd(t, queue, play("Stale", time.Now().Add(-MaxAge-time.Hour)))
	mustAdd(t, queue, play("Rejected", time.Now().Add(-time.Hour)))

	svc := newFakeService()
	svc.ignore = map[string]string{"Rejected": "Artist ignored"}
	startNotifier(t, svc, queue)
	svc.wait(t)

	if got := svc.submittedTracks(); len(got) != 1 || got[0] != "Rejected" {
		t.Errorf("only the fresh play should be sent, got %v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mustCount(t, queue, false) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("ignored and expired plays should leave the pending queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifier_ShutdownFlushesQueuedEvents(t *testing.T) {
	queue := createTestQueue(t)
	svc := newFakeService()
	n := NewNotifier(svc, queue, zerolog.Nop())

	// Events queued before Run starts are only seen by the shutdown drain.
	n.Scrobble(song("Last song"), time.Now().Add(-2*time.Minute), 2*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)

	if got := svc.submittedTracks(); len(got) != 1 || got[0] != "Last song" {
		t.Errorf("submitted = %v", got)
	}
	if got := mustCount(t, queue, false); got != 0 {
		t.Errorf("expected no pending scrobbles, got %d", got)
	}
}
