package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/dynbox/internal/domain/track"
)

func TestPlaylist_TrackIDs(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []track.Track
		expected []string
	}{
		{
			name:     "empty playlist",
			tracks:   []track.Track{},
			expected: []string{},
		},
		{
			name: "multiple tracks keep order",
			tracks: []track.Track{
				{ID: "track-3"},
				{ID: "track-1"},
				{ID: "track-2"},
			},
			expected: []string{"track-3", "track-1", "track-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{Tracks: tt.tracks}
			assert.Equal(t, tt.expected, p.TrackIDs())
		})
	}
}

func TestPlaylist_TotalDuration(t *testing.T) {
	p := &Playlist{
		Tracks: []track.Track{
			{ID: "track-1", Duration: 2*time.Minute + 15*time.Second},
			{ID: "track-2", Duration: 3*time.Minute + 45*time.Second},
		},
	}

	assert.Equal(t, 6*time.Minute, p.TotalDuration())
	assert.Equal(t, time.Duration(0), (&Playlist{}).TotalDuration())
}

func TestPlaylist_Underfilled(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		generated int
		expected  bool
	}{
		{name: "exact fill", requested: 3, generated: 3, expected: false},
		{name: "short", requested: 5, generated: 1, expected: true},
		{name: "empty result", requested: 2, generated: 0, expected: true},
		{name: "nothing requested", requested: 0, generated: 0, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{Requested: tt.requested, Tracks: make([]track.Track, tt.generated)}
			assert.Equal(t, tt.expected, p.Underfilled())
		})
	}
}

func TestPlaylist_DistinctArtists(t *testing.T) {
	p := &Playlist{
		Tracks: []track.Track{
			{ID: "1", Artists: []string{"Queen"}},
			{ID: "2", Artists: []string{"Queen", "David Bowie"}},
			{ID: "3", Artists: []string{"Eagles"}},
			{ID: "4"},
		},
	}

	assert.Equal(t, 2, p.DistinctArtists())
}
