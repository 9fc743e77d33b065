package discord

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Techno-coder/pmu/internal/metadata"
)

func song(artist, album, title string) metadata.Metadata {
	return metadata.Metadata{Artist: artist, Album: album, Title: title}
}

func TestArtworkLookup_ReturnsUpscaledURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(itunesResponse{
			Results: []itunesResult{
				{ArtworkURL100: "https://example.com/art/100x100bb.jpg"},
			},
		})
	}))
	defer srv.Close()

	a := newArtworkLookup()
	a.endpoint = srv.URL

	got := a.Lookup(song("Queen", "A Night at the Opera", "Bohemian Rhapsody"))
	want := "https://example.com/art/600x600bb.jpg"
	if got != want {
		t.Errorf("Lookup() = %q, want %q", got, want)
	}
}

func TestArtworkLookup_CachesResults(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(itunesResponse{
			Results: []itunesResult{
				{ArtworkURL100: "https://example.com/art/100x100bb.jpg"},
			},
		})
	}))
	defer srv.Close()

	a := newArtworkLookup()
	a.endpoint = srv.URL

	a.Lookup(song("Queen", "A Night at the Opera", "Bohemian Rhapsody"))
	a.Lookup(song("Queen", "A Night at the Opera", "Bohemian Rhapsody"))
	a.Lookup(song("Queen", "A Night at the Opera", "Bohemian Rhapsody"))

	if n := hits.Load(); n != 1 {
		t.Errorf("expected 1 HTTP request, got %d", n)
	}
}

func TestArtworkLookup_FallsBackToSongEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entity := r.URL.Query().Get("entity")
		if entity == "album" {
			_ = json.NewEncoder(w).Encode(itunesResponse{Results: nil})
			return
		}
		_ = json.NewEncoder(w).Encode(itunesResponse{
			Results: []itunesResult{
				{ArtworkURL100: "https://example.com/art/100x100bb.jpg"},
			},
		})
	}))
	defer srv.Close()

	a := newArtworkLookup()
	a.endpoint = srv.URL

	got := a.Lookup(song("Ninajirachi", "I Love My Computer", "iPod Touch"))
	want := "https://example.com/art/600x600bb.jpg"
	if got != want {
		t.Errorf("Lookup() = %q, want %q", got, want)
	}
}

func TestArtworkLookup_EmptyOnNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(itunesResponse{Results: nil})
	}))
	defer srv.Close()

	a := newArtworkLookup()
	a.endpoint = srv.URL

	if got := a.Lookup(song("Unknown", "Album", "Title")); got != "" {
		t.Errorf("expected empty string for no results, got %q", got)
	}
}

func TestArtworkLookup_EmptyOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newArtworkLookup()
	a.endpoint = srv.URL

	if got := a.Lookup(song("Artist", "Album", "Title")); got != "" {
		t.Errorf("expected empty string on HTTP error, got %q", got)
	}
}

func TestArtworkLookup_EmptyOnUnreachable(t *testing.T) {
	a := newArtworkLookup()
	a.endpoint = "http://127.0.0.1:1" // nothing listening

	if got := a.Lookup(song("Artist", "Album", "Title")); got != "" {
		t.Errorf("expected empty string on connection error, got %q", got)
	}
}

func TestArtworkLookup_NegativeCacheWithTTL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(itunesResponse{Results: nil})
	}))
	defer srv.Close()

	now := time.Now()
	a := newArtworkLookup()
	a.endpoint = srv.URL
	a.now = func() time.Time { return now }

	// First lookup misses both album and song searches and is cached as negative
	if got := a.Lookup(song("Unknown", "Album", "Title")); got != "" {
		t.Errorf("first lookup: expected empty, got %q", got)
	}
	firstHits := hits.Load()

	// Second lookup within TTL is served from the negative cache
	if got := a.Lookup(song("Unknown", "Album", "Title")); got != "" {
		t.Errorf("within TTL: expected empty, got %q", got)
	}
	if n := hits.Load(); n != firstHits {
		t.Errorf("expected no new requests within TTL, got %d more", n-firstHits)
	}

	// Past the TTL the lookup is retried
	now = now.Add(negativeCacheTTL + time.Second)
	a.Lookup(song("Unknown", "Album", "Title"))
	if n := hits.Load(); n == firstHits {
		t.Error("expected new requests after TTL expiry, got none")
	}
}

func TestArtworkLookup_SkipsUnknownArtist(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	a := newArtworkLookup()
	a.endpoint = srv.URL

	if got := a.Lookup(song("", "Album", "Title")); got != "" {
		t.Errorf("Lookup() = %q, want empty", got)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("expected no requests without an artist, got %d", n)
	}
}

func TestArtworkLookup_PersistsAcrossInstances(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(itunesResponse{
			Results: []itunesResult{
				{ArtworkURL100: "https://example.com/art/100x100bb.jpg"},
			},
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "artwork.db")
	db, err := OpenArtworkCache(path)
	if err != nil {
		t.Fatalf("OpenArtworkCache: %v", err)
	}

	first := newArtworkLookup()
	first.endpoint = srv.URL
	first.db = db
	first.Lookup(song("Queen", "A Night at the Opera", "Bohemian Rhapsody"))
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = OpenArtworkCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	second := newArtworkLookup()
	second.endpoint = srv.URL
	second.db = db
	got := second.Lookup(song("Queen", "A Night at the Opera", "Bohemian Rhapsody"))

	if got != "https://example.com/art/600x600bb.jpg" {
		t.Errorf("Lookup() = %q, want cached artwork URL", got)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("expected 1 HTTP request across instances, got %d", n)
	}
}
