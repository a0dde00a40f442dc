package bias

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/domain/track"
	"github.com/osa030/dynbox/internal/infra/config"
)

func albumUniverse() *dynamic.Universe {
	return dynamic.NewUniverse([]track.Track{
		{ID: "r1", Name: "Second Hand News", Album: "Rumours", DiscNumber: 1, TrackNumber: 1},
		{ID: "r2", Name: "Dreams", Album: "Rumours", DiscNumber: 1, TrackNumber: 2},
		{ID: "r2x", Name: "Dreams", Album: "rumours", DiscNumber: 1, TrackNumber: 2},
		{ID: "r4", Name: "Don't Stop", Album: "Rumours", DiscNumber: 1, TrackNumber: 4},
		{ID: "t1", Name: "Tusk", Album: "Tusk", DiscNumber: 1, TrackNumber: 1},
		{ID: "t2", Name: "Sara", Album: "Tusk", DiscNumber: 2, TrackNumber: 1},
		{ID: "x1", Name: "Single"},
	})
}

func TestAlbumPlay_MatchingTracks(t *testing.T) {
	u := albumUniverse()

	tests := []struct {
		name     string
		mode     string
		playlist []string
		want     []string
	}{
		{"next track", AlbumDirectFollow, []string{"r1"}, []string{"r2", "r2x"}},
		{"next track skips gaps", AlbumDirectFollow, []string{"r1", "r2"}, []string{"r4"}},
		{"next disc", AlbumDirectFollow, []string{"t1"}, []string{"t2"}},
		{"album finished", AlbumDirectFollow, []string{"r4"}, []string{}},
		{"later tracks", AlbumFollow, []string{"r2"}, []string{"r4"}},
		{"any track of the album", AlbumDontCare, []string{"r2"}, []string{"r1", "r2x", "r4"}},
		{"empty playlist", AlbumDirectFollow, nil, []string{}},
		{"no album", AlbumDontCare, []string{"x1"}, []string{}},
		{"unknown track", AlbumDontCare, []string{"zz"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAlbumPlay(tt.mode).MatchingTracks(context.Background(), newRequest(u, 5, tt.playlist...))
			require.False(t, got.IsOutstanding())
			assert.ElementsMatch(t, tt.want, got.IDs())
		})
	}
}

func TestAlbumPlay_TrackMatches(t *testing.T) {
	b := NewAlbumPlay(AlbumDirectFollow)
	u := albumUniverse()
	b.MatchingTracks(context.Background(), newRequest(u, 3))

	assert.True(t, b.TrackMatches(1, []string{"r1", "r2"}, 0))
	assert.False(t, b.TrackMatches(1, []string{"r1", "r4"}, 0))
	assert.False(t, b.TrackMatches(0, []string{"r1"}, 0), "the first track has nothing to continue")
}

func TestAlbumPlay_WithIfElse(t *testing.T) {
	b, err := Build(config.BiasConfig{
		Type: "if_else",
		Biases: []config.BiasConfig{
			{Type: "album_play"},
			{Type: "tag_match", Settings: map[string]any{"field": "track_number", "condition": "equals", "value": "1"}},
		},
	}, Deps{})
	require.NoError(t, err)
	u := albumUniverse()

	got := resolve(t, b, newRequest(u, 5, "r2"))
	assert.ElementsMatch(t, []string{"r4"}, got.IDs(), "the album continues")

	got = resolve(t, b, newRequest(u, 5, "r4"))
	assert.ElementsMatch(t, []string{"r1", "t1", "t2"}, got.IDs(), "a finished album starts another one")
}

func TestAlbumPlay_Settings(t *testing.T) {
	_, err := Build(config.BiasConfig{Type: "album_play", Settings: map[string]any{"mode": "shuffle"}}, Deps{})
	assert.Error(t, err)
}
