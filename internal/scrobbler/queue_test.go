package scrobbler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// createTestQueue creates an in-memory SQLite queue for testing
func createTestQueue(t *testing.T) *Queue {
	t.Helper()

	queue, err := NewQueue(":memory:")
	if err != nil {
		t.Fatalf("failed to create test queue: %v", err)
	}
	t.Cleanup(func() {
		_ = queue.Close()
	})
	return queue
}

func play(track string, startedAt time.Time) Scrobble {
	return Scrobble{
		Artist:    "Test Artist",
		Track:     track,
		Album:     "Test Album",
		StartedAt: startedAt,
		Played:    2 * time.Minute,
	}
}

func mustAdd(t *testing.T, q *Queue, s Scrobble) int64 {
	t.Helper()
	id, err := q.Add(context.Background(), s)
	if err != nil {
		t.Fatalf("failed to add scrobble: %v", err)
	}
	return id
}

func mustCount(t *testing.T, q *Queue, includeSubmitted bool) int {
	t.Helper()
	count, err := q.Count(context.Background(), includeSubmitted)
	if err != nil {
		t.Fatalf("failed to count scrobbles: %v", err)
	}
	return count
}

func TestNewQueue_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrobbles.db")

	queue, err := NewQueue(path)
	if err != nil {
		t.Fatalf("failed to create file-based queue: %v", err)
	}
	mustAdd(t, queue, play("Kept", time.Now()))
	if err := queue.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewQueue(path)
	if err != nil {
		t.Fatalf("failed to reopen queue: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if got := mustCount(t, reopened, false); got != 1 {
		t.Errorf("expected 1 pending scrobble after reopen, got %d", got)
	}
}

func TestQueueAdd(t *testing.T) {
	queue := createTestQueue(t)
	start := time.Unix(1700000000, 0)

	id := mustAdd(t, queue, play("Test Track", start))
	if id <= 0 {
		t.Errorf("expected positive id, got %d", id)
	}

	pending, err := queue.Pending(context.Background(), 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending scrobble, got %d", len(pending))
	}

	got := pending[0]
	if got.ID != id || got.Track != "Test Track" || got.Album != "Test Album" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if !got.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
	}
	if got.Played != 2*time.Minute {
		t.Errorf("Played = %v, want 2m", got.Played)
	}
	if got.Submitted || got.Attempts != 0 || got.Error != "" {
		t.Errorf("new entry should be untouched: %+v", got)
	}
}

func TestQueueMarkSubmitted(t *testing.T) {
	queue := createTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	a := mustAdd(t, queue, play("A", now))
	b := mustAdd(t, queue, play("B", now))
	mustAdd(t, queue, play("C", now))

	if err := queue.MarkSubmitted(ctx, "", a, b); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}

	if got := mustCount(t, queue, false); got != 1 {
		t.Errorf("expected 1 pending scrobble, got %d", got)
	}
	if got := mustCount(t, queue, true); got != 3 {
		t.Errorf("expected 3 total scrobbles, got %d", got)
	}

	if err := queue.MarkSubmitted(ctx, ""); err != nil {
		t.Errorf("empty MarkSubmitted should be a no-op, got %v", err)
	}
}

func TestQueueMarkSubmitted_KeepsIgnoredReason(t *testing.T) {
	queue := createTestQueue(t)
	ctx := context.Background()

	id := mustAdd(t, queue, play("Ignored", time.Now()))
	if err := queue.MarkSubmitted(ctx, "Artist ignored", id); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}

	all, err := queue.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || !all[0].Submitted || all[0].Error != "Artist ignored" {
		t.Errorf("unexpected entry: %+v", all)
	}
}

func TestQueueMarkFailed(t *testing.T) {
	queue := createTestQueue(t)
	ctx := context.Background()

	id := mustAdd(t, queue, play("Flaky", time.Now()))
	for i := 0; i < 2; i++ {
		if err := queue.MarkFailed(ctx, "network error", id); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
	}

	pending, err := queue.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("failed scrobble should stay pending, got %d", len(pending))
	}
	if pending[0].Attempts != 2 || pending[0].Error != "network error" {
		t.Errorf("unexpected entry: %+v", pending[0])
	}

	if err := queue.MarkFailed(ctx, "x", 9999); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestQueuePending_OrderAndLimit(t *testing.T) {
	queue := createTestQueue(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	mustAdd(t, queue, play("Third", base.Add(2*time.Minute)))
	mustAdd(t, queue, play("First", base))
	mustAdd(t, queue, play("Second", base.Add(time.Minute)))

	pending, err := queue.Pending(ctx, 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	want := []string{"First", "Second", "Third"}
	for i, e := range pending {
		if e.Track != want[i] {
			t.Errorf("pending[%d] = %q, want %q", i, e.Track, want[i])
		}
	}

	limited, err := queue.Pending(ctx, 2)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(limited) != 2 || limited[0].Track != "First" {
		t.Errorf("limited pending = %+v", limited)
	}
}

func TestQueueAll(t *testing.T) {
	queue := createTestQueue(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	old := mustAdd(t, queue, play("Old", base))
	mustAdd(t, queue, play("New", base.Add(time.Hour)))
	if err := queue.MarkSubmitted(ctx, "", old); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}

	all, err := queue.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all[0].Track != "New" || all[1].Track != "Old" {
		t.Errorf("All should list newest first, got %+v", all)
	}
}

func TestQueuePrune(t *testing.T) {
	queue := createTestQueue(t)
	ctx := context.Background()
	now := time.Unix(1800000000, 0)
	queue.now = func() time.Time { return now }

	oldSubmitted := mustAdd(t, queue, play("old submitted", now.Add(-40*24*time.Hour)))
	recentSubmitted := mustAdd(t, queue, play("recent submitted", now.Add(-time.Hour)))
	mustAdd(t, queue, play("expired pending", now.Add(-MaxAge-time.Hour)))
	mustAdd(t, queue, play("fresh pending", now.Add(-time.Hour)))
	if err := queue.MarkSubmitted(ctx, "", oldSubmitted, recentSubmitted); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}

	deleted, err := queue.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	all, err := queue.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	left := map[string]bool{}
	for _, e := range all {
		left[e.Track] = true
	}
	if !left["recent submitted"] || !left["fresh pending"] || len(left) != 2 {
		t.Errorf("unexpected survivors: %v", left)
	}
}

func TestQueueConcurrentAccess(t *testing.T) {
	queue := createTestQueue(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := queue.Add(ctx, play("Concurrent", time.Now().Add(time.Duration(i)*time.Second))); err != nil {
				t.Errorf("concurrent add failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := mustCount(t, queue, false); got != 10 {
		t.Errorf("expected 10 pending scrobbles, got %d", got)
	}
}

func BenchmarkQueueAdd(b *testing.B) {
	queue, err := NewQueue(":memory:")
	if err != nil {
		b.Fatalf("failed to create queue: %v", err)
	}
	defer func() { _ = queue.Close() }()

	ctx := context.Background()
	s := play("Benchmark", time.Now())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = queue.Add(ctx, s)
	}
}
