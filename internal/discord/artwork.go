package discord

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Techno-coder/pmu/internal/metadata"
)

// negativeCacheTTL is how long a failed lookup is remembered before
// the iTunes API is asked again.
const negativeCacheTTL = 6 * time.Hour

var artworkBucket = []byte("artwork")

// artworkLookup fetches album artwork URLs from the iTunes Search API.
// Results are cached in memory and, when a database is attached, on disk
// so restarts of the daemon do not repeat lookups.
type artworkLookup struct {
	mu       sync.Mutex
	cache    map[string]artworkEntry
	db       *bolt.DB
	client   *http.Client
	endpoint string
	now      func() time.Time
}

type artworkEntry struct {
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

func newArtworkLookup() *artworkLookup {
	return &artworkLookup{
		cache: make(map[string]artworkEntry),
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
		endpoint: "https://itunes.apple.com/search",
		now:      time.Now,
	}
}

// OpenArtworkCache opens the bolt database used to persist artwork lookups.
func OpenArtworkCache(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open artwork cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(artworkBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create artwork bucket: %w", err)
	}
	return db, nil
}

type itunesResponse struct {
	Results []itunesResult `json:"results"`
}

type itunesResult struct {
	ArtworkURL100 string `json:"artworkUrl100"`
}

// Lookup returns an artwork URL for the song. The album is searched first,
// then the song itself. Returns empty string on any failure; callers
// should treat artwork as optional.
func (a *artworkLookup) Lookup(meta metadata.Metadata) string {
	if meta.Artist == "" || (meta.Album == "" && meta.Title == "") {
		return ""
	}
	key := meta.Artist + "|" + meta.Album + "|" + meta.Title

	if entry, ok := a.cached(key); ok {
		return entry.URL
	}

	var artURL string
	if meta.Album != "" {
		artURL = a.fetch(meta.Artist+" "+meta.Album, "album")
	}
	if artURL == "" && meta.Title != "" {
		artURL = a.fetch(meta.Artist+" "+meta.Title, "song")
	}

	a.store(key, artworkEntry{URL: artURL, FetchedAt: a.now()})
	return artURL
}

func (a *artworkLookup) fresh(entry artworkEntry) bool {
	return entry.URL != "" || a.now().Sub(entry.FetchedAt) < negativeCacheTTL
}

func (a *artworkLookup) cached(key string) (artworkEntry, bool) {
	a.mu.Lock()
	entry, ok := a.cache[key]
	a.mu.Unlock()
	if ok && a.fresh(entry) {
		return entry, true
	}

	if a.db == nil {
		return artworkEntry{}, false
	}

	var data []byte
	_ = a.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(artworkBucket); b != nil {
			if v := b.Get([]byte(key)); v != nil {
				data = append([]byte(nil), v...)
			}
		}
		return nil
	})
	if data == nil || json.Unmarshal(data, &entry) != nil || !a.fresh(entry) {
		return artworkEntry{}, false
	}

	a.mu.Lock()
	a.cache[key] = entry
	a.mu.Unlock()
	return entry, true
}

func (a *artworkLookup) store(key string, entry artworkEntry) {
	a.mu.Lock()
	a.cache[key] = entry
	a.mu.Unlock()

	if a.db == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// Best effort: the in-memory cache still serves this session.
	_ = a.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(artworkBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func (a *artworkLookup) fetch(term, entity string) string {
	query := url.Values{
		"term":   {term},
		"entity": {entity},
		"limit":  {"1"},
	}
	resp, err := a.client.Get(fmt.Sprintf("%s?%s", a.endpoint, query.Encode()))
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var result itunesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	if len(result.Results) == 0 || result.Results[0].ArtworkURL100 == "" {
		return ""
	}

	// Upscale from 100x100 to 600x600 for better quality
	return strings.Replace(result.Results[0].ArtworkURL100, "100x100bb", "600x600bb", 1)
}
