// Package metadata works out artist and title for a local song file.
//
// Rhythm game folders carry better information than the audio file itself, so
// sibling osu! and StepMania charts are consulted before embedded tags. When
// nothing else is available the file name is used as the title.
package metadata

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhowden/tag"
)

// Metadata describes a song. Empty fields are unknown.
type Metadata struct {
	Artist string `json:"artist,omitempty"`
	Title  string `json:"title,omitempty"`
	Album  string `json:"album,omitempty"`

	// Origin links to where the song came from, if known.
	Origin *Origin `json:"origin,omitempty"`
}

// Origin is a named link shown alongside presence updates.
type Origin struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// Source tries to resolve metadata for path. ok is false when the source
// does not apply to this file.
type Source func(path string) (Metadata, bool)

// DefaultSources is the resolution order used by Find.
var DefaultSources = []Source{Osu, StepMania, Tags}

// Find resolves metadata for path using DefaultSources.
func Find(path string) Metadata {
	return Resolve(path, DefaultSources...)
}

// Resolve returns the first metadata produced by sources, falling back to the
// file stem as title.
func Resolve(path string, sources ...Source) Metadata {
	for _, source := range sources {
		if m, ok := source(path); ok {
			return m
		}
	}

	base := filepath.Base(path)
	return Metadata{Title: strings.TrimSuffix(base, filepath.Ext(base))}
}

var (
	osuArtist    = regexp.MustCompile(`Artist:([^\n]+)`)
	osuTitle     = regexp.MustCompile(`Title:([^\n]+)`)
	osuBeatmapID = regexp.MustCompile(`BeatmapSetID:([^\n]+)`)
	firstNumber  = regexp.MustCompile(`(\d+)`)

	smArtist = regexp.MustCompile(`#ARTIST:([^;]+);`)
	smTitle  = regexp.MustCompile(`#TITLE:([^;]+);`)
)

const (
	osuOriginName = "osu! Beatmap"
	osuBeatmapURL = "https://osu.ppy.sh/beatmapsets/"
)

// Osu reads the first .osu chart next to path.
func Osu(path string) (Metadata, bool) {
	dir := filepath.Dir(path)
	text, ok := readSibling(dir, ".osu")
	if !ok {
		return Metadata{}, false
	}

	m := Metadata{
		Artist: match(osuArtist, text),
		Title:  match(osuTitle, text),
	}

	id := match(osuBeatmapID, text)
	if id == "" {
		// Beatmap folders are conventionally named "<set id> <artist> - <title>".
		id = match(firstNumber, filepath.Base(dir))
	}
	if id != "" {
		m.Origin = &Origin{Name: osuOriginName, Link: osuBeatmapURL + id}
	}

	return m, true
}

// StepMania reads the first .sm simfile next to path.
func StepMania(path string) (Metadata, bool) {
	text, ok := readSibling(filepath.Dir(path), ".sm")
	if !ok {
		return Metadata{}, false
	}

	return Metadata{
		Artist: match(smArtist, text),
		Title:  match(smTitle, text),
	}, true
}

// Tags reads ID3, MP4, FLAC and Ogg tags embedded in the file.
// Files without a title tag are not considered resolved.
func Tags(path string) (Metadata, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, false
	}
	defer f.Close()

	tags, err := tag.ReadFrom(f)
	if err != nil {
		return Metadata{}, false
	}

	title := strings.TrimSpace(tags.Title())
	if title == "" {
		return Metadata{}, false
	}

	return Metadata{
		Artist: strings.TrimSpace(tags.Artist()),
		Title:  title,
		Album:  strings.TrimSpace(tags.Album()),
	}, true
}

// readSibling returns the contents of the first file in dir with extension ext.
func readSibling(dir, ext string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return "", false
		}
		return string(data), true
	}

	return "", false
}

// match returns the trimmed first capture group, or "" when absent or blank.
func match(re *regexp.Regexp, text string) string {
	groups := re.FindStringSubmatch(text)
	if len(groups) < 2 {
		return ""
	}
	return strings.TrimSpace(groups[1])
}
