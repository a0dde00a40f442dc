// Package playlist provides the generated Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/dynbox/internal/domain/track"
)

// Playlist is the outcome of one generation request.
// Tracks may hold fewer entries than Requested; an underfilled
// playlist is still a valid result.
type Playlist struct {
	ID          string        // Remote playlist ID once pushed (empty otherwise)
	Name        string        // Playlist name
	Description string        // Playlist description
	URL         string        // Remote URL once pushed
	Requested   int           // Number of tracks asked for
	Context     []string      // Track IDs the generation continued from
	Tracks      []track.Track // Generated tracks, in order
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return track.IDs(p.Tracks)
}

// TotalDuration returns the summed duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// Underfilled reports whether fewer tracks were generated than requested.
func (p *Playlist) Underfilled() bool {
	return len(p.Tracks) < p.Requested
}

// DistinctArtists returns the number of distinct main artists.
func (p *Playlist) DistinctArtists() int {
	seen := make(map[string]struct{}, len(p.Tracks))
	for _, t := range p.Tracks {
		if a := t.MainArtist(); a != "" {
			seen[a] = struct{}{}
		}
	}
	return len(seen)
}
