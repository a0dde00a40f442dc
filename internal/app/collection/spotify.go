package collection

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/dynbox/internal/domain/track"
)

// SpotifyPlaylistSettings represents settings for the spotify_playlist source.
type SpotifyPlaylistSettings struct {
	PlaylistURL string `mapstructure:"playlist_url" validate:"required"`
}

// SpotifySavedSettings represents settings for the spotify_saved source.
type SpotifySavedSettings struct {
	Limit int `mapstructure:"limit" validate:"gte=0"` // 0 = all saved tracks
}

func init() {
	Register(Factory{
		Name:        "spotify_playlist",
		Description: "Tracks of a Spotify playlist",
		New: func(settings map[string]any, deps Deps) (Source, error) {
			var s SpotifyPlaylistSettings
			if err := decodeSettings(settings, &s); err != nil {
				return nil, err
			}
			return NewSpotifyPlaylist(deps.Spotify, s.PlaylistURL)
		},
	})
	Register(Factory{
		Name:        "spotify_saved",
		Description: "Tracks saved in the Spotify library of the authorized user",
		New: func(settings map[string]any, deps Deps) (Source, error) {
			var s SpotifySavedSettings
			if err := decodeSettings(settings, &s); err != nil {
				return nil, err
			}
			return NewSpotifySaved(deps.Spotify, s.Limit)
		},
	})
}

// SpotifyPlaylist streams the tracks of a Spotify playlist.
type SpotifyPlaylist struct {
	spotify     SpotifyClient
	playlistURL string
}

// NewSpotifyPlaylist creates a playlist source.
func NewSpotifyPlaylist(spotify SpotifyClient, playlistURL string) (*SpotifyPlaylist, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}
	return &SpotifyPlaylist{spotify: spotify, playlistURL: playlistURL}, nil
}

// Name returns the source name.
func (p *SpotifyPlaylist) Name() string {
	return "spotify_playlist"
}

// QueryTracks streams the playlist.
func (p *SpotifyPlaylist) QueryTracks(ctx context.Context, emit func([]track.Track)) error {
	return p.spotify.StreamPlaylistTracks(ctx, p.playlistURL, emit)
}

// SpotifySaved streams the user's saved tracks.
type SpotifySaved struct {
	spotify SpotifyClient
	limit   int
}

// NewSpotifySaved creates a saved tracks source.
func NewSpotifySaved(spotify SpotifyClient, limit int) (*SpotifySaved, error) {
	if spotify == nil {
		return nil, errors.New("spotify client is required")
	}
	return &SpotifySaved{spotify: spotify, limit: limit}, nil
}

// Name returns the source name.
func (s *SpotifySaved) Name() string {
	return "spotify_saved"
}

// QueryTracks streams the saved tracks.
func (s *SpotifySaved) QueryTracks(ctx context.Context, emit func([]track.Track)) error {
	return s.spotify.StreamSavedTracks(ctx, s.limit, emit)
}
