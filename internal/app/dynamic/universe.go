// Package dynamic implements the dynamic playlist bias solver: the
// track universe snapshot, track sets over it, the bias contract and
// the randomized backtracking solver that builds playlists from biases.
package dynamic

import (
	"context"

	"github.com/osa030/dynbox/internal/domain/track"
)

// Collection supplies the candidate tracks for a solve.
// QueryTracks delivers tracks in one or more batches through emit and
// signals completion by returning.
type Collection interface {
	QueryTracks(ctx context.Context, emit func([]track.Track)) error
}

// Universe is an immutable snapshot of all candidate tracks.
// Positions are stable for the lifetime of the snapshot and back the
// bit positions of every TrackSet built over it.
type Universe struct {
	tracks []track.Track
	index  map[string]int
}

// NewUniverse builds a snapshot from tracks.
// Tracks with an empty ID are dropped; for repeated IDs the first one wins.
func NewUniverse(tracks []track.Track) *Universe {
	u := &Universe{
		tracks: make([]track.Track, 0, len(tracks)),
		index:  make(map[string]int, len(tracks)),
	}
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		if _, exists := u.index[t.ID]; exists {
			continue
		}
		u.index[t.ID] = len(u.tracks)
		u.tracks = append(u.tracks, t)
	}
	return u
}

// Len returns the number of tracks in the universe.
func (u *Universe) Len() int {
	if u == nil {
		return 0
	}
	return len(u.tracks)
}

// ID returns the track ID at position i.
func (u *Universe) ID(i int) string {
	return u.tracks[i].ID
}

// Index returns the position of id.
func (u *Universe) Index(id string) (int, bool) {
	if u == nil {
		return 0, false
	}
	i, ok := u.index[id]
	return i, ok
}

// Contains reports whether id is part of the universe.
func (u *Universe) Contains(id string) bool {
	_, ok := u.Index(id)
	return ok
}

// Track returns the track metadata for id.
func (u *Universe) Track(id string) (track.Track, bool) {
	i, ok := u.Index(id)
	if !ok {
		return track.Track{}, false
	}
	return u.tracks[i], true
}

// Tracks returns a copy of all tracks in universe order.
func (u *Universe) Tracks() []track.Track {
	if u == nil {
		return nil
	}
	out := make([]track.Track, len(u.tracks))
	copy(out, u.tracks)
	return out
}

// Each calls fn for every track in universe order until fn returns false.
func (u *Universe) Each(fn func(i int, t *track.Track) bool) {
	if u == nil {
		return
	}
	for i := range u.tracks {
		if !fn(i, &u.tracks[i]) {
			return
		}
	}
}
