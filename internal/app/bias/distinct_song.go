package bias

import (
	"context"
	"sync/atomic"

	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/domain/track"
)

func init() {
	Register(Factory{
		Name:        "distinct_song",
		Description: "Rejects other releases (remasters, live and radio versions) of songs already in the playlist",
		New: func(_ map[string]any, _ []dynamic.Bias, _ Deps) (dynamic.Bias, error) {
			return NewDistinctSong(), nil
		},
	})
}

// DistinctSong rejects tracks whose song is already in the playlist.
// Two tracks are the same song when their normalized titles and main
// artists match. Covers by other artists are distinct songs.
type DistinctSong struct {
	universe atomic.Pointer[dynamic.Universe]
}

// NewDistinctSong creates a distinct song bias.
func NewDistinctSong() *DistinctSong {
	return &DistinctSong{}
}

// Name returns the bias type name.
func (b *DistinctSong) Name() string {
	return "distinct_song"
}

// MatchingTracks returns the universe minus every release of the songs in
// the playlist.
func (b *DistinctSong) MatchingTracks(_ context.Context, req dynamic.Request) dynamic.TrackSet {
	b.universe.Store(req.Universe)

	result := dynamic.NewTrackSet(req.Universe, true)
	result.SubtractIDs(req.Playlist)

	used := make(map[string]struct{}, len(req.Playlist))
	for _, id := range req.Playlist {
		if t, ok := req.Universe.Track(id); ok {
			used[songKey(&t)] = struct{}{}
		}
	}
	if len(used) == 0 {
		return result
	}

	req.Universe.Each(func(_ int, t *track.Track) bool {
		if _, ok := used[songKey(t)]; ok {
			result.Subtract(t.ID)
		}
		return true
	})
	return result
}

// TrackMatches reports whether the track at position is a song not seen
// earlier in the playlist. Tracks without known metadata only compare by id.
func (b *DistinctSong) TrackMatches(position int, playlist []string, _ int) bool {
	if position < 0 || position >= len(playlist) {
		return true
	}
	id := playlist[position]
	u := b.universe.Load()
	current, known := u.Track(id)

	for _, earlier := range playlist[:position] {
		if earlier == id {
			return false
		}
		if !known {
			continue
		}
		if other, ok := u.Track(earlier); ok &&
			normalizeTrackName(other.Name) == normalizeTrackName(current.Name) &&
			isSameArtist(other, current) {
			return false
		}
	}
	return true
}
