package bias

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/domain/track"
)

// Album play modes.
const (
	AlbumDirectFollow = "direct_follow" // the next track of the album
	AlbumFollow       = "follow"        // any later track of the album
	AlbumDontCare     = "dont_care"     // any other track of the album
)

// AlbumPlaySettings represents settings for the album play bias.
type AlbumPlaySettings struct {
	Mode string `mapstructure:"mode" default:"direct_follow" validate:"oneof=direct_follow follow dont_care"`
}

func init() {
	Register(Factory{
		Name:        "album_play",
		Description: "Continues the album of the previous track",
		New: func(settings map[string]any, _ []dynamic.Bias, _ Deps) (dynamic.Bias, error) {
			var s AlbumPlaySettings
			if err := decodeSettings(settings, &s); err != nil {
				return nil, err
			}
			return NewAlbumPlay(s.Mode), nil
		},
	})
}

// AlbumPlay matches tracks of the previous track's album. It matches
// nothing when there is no previous track, its album is unknown, or the
// album has no track left to play; combine it with if_else to start a new
// album in that case.
type AlbumPlay struct {
	mode     string
	universe atomic.Pointer[dynamic.Universe]
}

// NewAlbumPlay creates an album play bias.
func NewAlbumPlay(mode string) *AlbumPlay {
	return &AlbumPlay{mode: mode}
}

// Name returns the bias type name.
func (b *AlbumPlay) Name() string {
	return "album_play"
}

// MatchingTracks returns the tracks that continue the album of the last
// track in the playlist.
func (b *AlbumPlay) MatchingTracks(_ context.Context, req dynamic.Request) dynamic.TrackSet {
	b.universe.Store(req.Universe)
	return b.following(req.Universe, req.Playlist)
}

func (b *AlbumPlay) following(u *dynamic.Universe, playlist []string) dynamic.TrackSet {
	result := dynamic.NewTrackSet(u, false)
	if len(playlist) == 0 {
		return result
	}
	previous, ok := u.Track(playlist[len(playlist)-1])
	album := albumKey(&previous)
	if !ok || album == "" {
		return result
	}

	var next *track.Track
	u.Each(func(_ int, t *track.Track) bool {
		if t.ID == previous.ID || albumKey(t) != album {
			return true
		}
		switch b.mode {
		case AlbumDontCare:
			result.Add(t.ID)
		case AlbumFollow:
			if previous.Precedes(t) {
				result.Add(t.ID)
			}
		default:
			if previous.Precedes(t) && (next == nil || t.Precedes(next)) {
				next = t
			}
		}
		return true
	})

	if next != nil {
		// Every track sharing the next position, e.g. the same album from another source.
		u.Each(func(_ int, t *track.Track) bool {
			if albumKey(t) == album && !t.Precedes(next) && !next.Precedes(t) {
				result.Add(t.ID)
			}
			return true
		})
	}
	return result
}

// TrackMatches reports whether the track at position continues the album
// of the track before it.
func (b *AlbumPlay) TrackMatches(position int, playlist []string, _ int) bool {
	if position <= 0 || position >= len(playlist) {
		return false
	}
	u := b.universe.Load()
	if u == nil {
		return false
	}
	set := b.following(u, playlist[:position])
	return set.Contains(playlist[position])
}

func albumKey(t *track.Track) string {
	return strings.ToLower(strings.TrimSpace(t.Album))
}
