// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// Track represents a track known to a collection.
// ID is the collection-wide unique id (Spotify ID, file:// URI, ...).
type Track struct {
	ID          string        // Unique track ID
	Name        string        // Track title
	Artists     []string      // Artist names, main artist first
	Album       string        // Album name
	TrackNumber int           // Position on the disc (0 if unknown)
	DiscNumber  int           // Disc of the album (0 if unknown)
	Genres      []string      // Genres (from tags or artist info)
	Year        int           // Release year (0 if unknown)
	Duration    time.Duration // Track duration
	Popularity  int           // Popularity score (0-100)
	Added       time.Time     // When the track entered the collection (zero if unknown)
	URL         string        // Source URL or file path
}

// MainArtist returns the first artist, or "" if none is known.
func (t *Track) MainArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// HasArtist reports whether any of the track's artists equals name (case-insensitive).
func (t *Track) HasArtist(name string) bool {
	for _, a := range t.Artists {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// HasGenre reports whether any of the track's genres equals genre (case-insensitive).
func (t *Track) HasGenre(genre string) bool {
	for _, g := range t.Genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

// Precedes reports whether t comes before other in album order.
func (t *Track) Precedes(other *Track) bool {
	if t.DiscNumber != other.DiscNumber {
		return t.DiscNumber < other.DiscNumber
	}
	return t.TrackNumber < other.TrackNumber
}

// IDs returns the IDs of the given tracks in order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
