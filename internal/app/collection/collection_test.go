package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/dynbox/internal/domain/track"
	"github.com/osa030/dynbox/internal/infra/config"
)

type fakeSpotify struct {
	playlists map[string][]track.Track
	saved     []track.Track
	err       error
	gotLimit  int
}

func (f *fakeSpotify) StreamPlaylistTracks(_ context.Context, playlistURL string, emit func([]track.Track)) error {
	if f.err != nil {
		return f.err
	}
	tracks, ok := f.playlists[playlistURL]
	if !ok {
		return errors.New("404 not found")
	}
	emit(tracks)
	return nil
}

func (f *fakeSpotify) StreamSavedTracks(_ context.Context, limit int, emit func([]track.Track)) error {
	f.gotLimit = limit
	if f.err != nil {
		return f.err
	}
	emit(f.saved)
	return nil
}

// collect runs a query and returns every delivered track.
func collect(t *testing.T, src Source) ([]track.Track, error) {
	t.Helper()
	var got []track.Track
	err := src.QueryTracks(context.Background(), func(batch []track.Track) {
		got = append(got, batch...)
	})
	return got, err
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"local", "spotify_playlist", "spotify_saved", "static"}, Names())
	for _, name := range Names() {
		assert.NotEmpty(t, GetRegistered()[name].Description, name)
	}
}

func TestBuild(t *testing.T) {
	spotify := &fakeSpotify{}

	tests := []struct {
		name    string
		cfgs    []config.SourceConfig
		deps    Deps
		sources []string
		wantErr string
	}{
		{
			name:    "no sources",
			wantErr: "no collection sources configured",
		},
		{
			name: "static and spotify",
			cfgs: []config.SourceConfig{
				{Type: "static", Settings: map[string]any{"tracks": []any{map[string]any{"id": "t1"}}}},
				{Type: "spotify_playlist", Settings: map[string]any{"playlist_url": "spotify:playlist:abc"}},
				{Type: "spotify_saved"},
			},
			deps:    Deps{Spotify: spotify},
			sources: []string{"static", "spotify_playlist", "spotify_saved"},
		},
		{
			name:    "unknown type",
			cfgs:    []config.SourceConfig{{Type: "cd"}},
			wantErr: "unsupported source type: cd",
		},
		{
			name:    "spotify without client",
			cfgs:    []config.SourceConfig{{Type: "spotify_saved"}},
			wantErr: "spotify client is required",
		},
		{
			name:    "static without tracks",
			cfgs:    []config.SourceConfig{{Type: "static"}},
			wantErr: "validation failed",
		},
		{
			name:    "playlist without url",
			cfgs:    []config.SourceConfig{{Type: "spotify_playlist"}},
			deps:    Deps{Spotify: spotify},
			wantErr: "validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := Build(tt.cfgs, tt.deps)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			var names []string
			for _, src := range chain.Sources() {
				names = append(names, src.Name())
			}
			assert.Equal(t, tt.sources, names)
		})
	}
}

func TestStatic(t *testing.T) {
	tracks := []track.Track{{ID: "t1"}, {ID: "t2"}, {ID: "t3"}, {ID: "t4"}, {ID: "t5"}}

	t.Run("batches", func(t *testing.T) {
		var sizes []int
		err := NewStatic(tracks, 2).QueryTracks(context.Background(), func(batch []track.Track) {
			sizes = append(sizes, len(batch))
		})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 2, 1}, sizes)
	})

	t.Run("single batch", func(t *testing.T) {
		got, err := collect(t, NewStatic(tracks, 0))
		require.NoError(t, err)
		assert.Equal(t, []string{"t1", "t2", "t3", "t4", "t5"}, track.IDs(got))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewStatic(tracks, 2).QueryTracks(ctx, func([]track.Track) {})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStatic_FromSettings(t *testing.T) {
	chain, err := Build([]config.SourceConfig{{Type: "static", Settings: map[string]any{
		"tracks": []any{
			map[string]any{
				"id": "t1", "name": "Dreams", "artists": []any{"Fleetwood Mac"},
				"genres": []any{"rock"}, "year": 1977, "duration_sec": 257, "popularity": 87,
				"album": "Rumours", "track_number": 2, "disc_number": 1, "added": "2024-03-01",
			},
		},
	}}}, Deps{})
	require.NoError(t, err)

	got, err := collect(t, chain)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, track.Track{
		ID:          "t1",
		Name:        "Dreams",
		Artists:     []string{"Fleetwood Mac"},
		Album:       "Rumours",
		TrackNumber: 2,
		DiscNumber:  1,
		Genres:      []string{"rock"},
		Year:        1977,
		Duration:    257 * time.Second,
		Popularity:  87,
		Added:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}, got[0])
}

func TestStatic_InvalidAddedDate(t *testing.T) {
	_, err := Build([]config.SourceConfig{{Type: "static", Settings: map[string]any{
		"tracks": []any{map[string]any{"id": "t1", "added": "March 2024"}},
	}}}, Deps{})
	assert.Error(t, err)
}

func TestSpotifySources(t *testing.T) {
	spotify := &fakeSpotify{
		playlists: map[string][]track.Track{"spotify:playlist:abc": {{ID: "p1"}, {ID: "p2"}}},
		saved:     []track.Track{{ID: "s1"}},
	}

	playlist, err := NewSpotifyPlaylist(spotify, "spotify:playlist:abc")
	require.NoError(t, err)
	got, err := collect(t, playlist)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, track.IDs(got))

	saved, err := NewSpotifySaved(spotify, 25)
	require.NoError(t, err)
	got, err = collect(t, saved)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, track.IDs(got))
	assert.Equal(t, 25, spotify.gotLimit)
}
