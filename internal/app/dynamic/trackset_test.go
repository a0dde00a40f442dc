package dynamic

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/dynbox/internal/domain/track"
)

func newTestUniverse(ids ...string) *Universe {
	tracks := make([]track.Track, len(ids))
	for i, id := range ids {
		tracks[i] = track.Track{ID: id, Name: "Song " + id}
	}
	return NewUniverse(tracks)
}

func TestNewUniverse(t *testing.T) {
	u := NewUniverse([]track.Track{
		{ID: "a", Name: "first"},
		{ID: ""},
		{ID: "b"},
		{ID: "a", Name: "second"},
	})

	assert.Equal(t, 2, u.Len())
	assert.Equal(t, "a", u.ID(0))
	assert.Equal(t, "b", u.ID(1))

	trk, ok := u.Track("a")
	require.True(t, ok)
	assert.Equal(t, "first", trk.Name, "first occurrence wins")

	_, ok = u.Index("missing")
	assert.False(t, ok)
	assert.False(t, (*Universe)(nil).Contains("a"))
	assert.Equal(t, 0, (*Universe)(nil).Len())
}

func TestTrackSet_Outstanding(t *testing.T) {
	ts := Outstanding()

	assert.True(t, ts.IsOutstanding())
	assert.Equal(t, 0, ts.TrackCount())
	assert.True(t, ts.IsEmpty())
	assert.False(t, ts.IsFull())
	assert.Nil(t, ts.IDs())

	ts.Subtract("a")
	_, ok := ts.RandomTrack(nil)
	assert.False(t, ok)
}

func TestTrackSet_FullAndEmpty(t *testing.T) {
	u := newTestUniverse("a", "b", "c")

	full := NewTrackSet(u, true)
	assert.False(t, full.IsOutstanding())
	assert.Equal(t, 3, full.TrackCount())
	assert.True(t, full.IsFull())
	assert.Equal(t, []string{"a", "b", "c"}, full.IDs())

	empty := NewTrackSet(u, false)
	assert.Equal(t, 0, empty.TrackCount())
	assert.True(t, empty.IsEmpty())

	emptyUniverse := NewTrackSet(newTestUniverse(), true)
	assert.Equal(t, 0, emptyUniverse.TrackCount())
	assert.True(t, emptyUniverse.IsFull())
}

func TestTrackSet_Subtract(t *testing.T) {
	u := newTestUniverse("a", "b", "c")
	ts := NewTrackSet(u, true)

	ts.Subtract("b")
	assert.Equal(t, 2, ts.TrackCount())
	assert.False(t, ts.Contains("b"))

	ts.Subtract("b")
	ts.Subtract("not-in-universe")
	assert.Equal(t, 2, ts.TrackCount(), "subtracting a non-member is a no-op")

	ts.SubtractIDs([]string{"a", "c", "c"})
	assert.Equal(t, 0, ts.TrackCount(), "count never goes negative")
}

func TestTrackSet_SetAlgebra(t *testing.T) {
	u := newTestUniverse("a", "b", "c", "d")

	tests := []struct {
		name     string
		apply    func(ts *TrackSet)
		expected []string
	}{
		{
			name: "intersect",
			apply: func(ts *TrackSet) {
				ts.Intersect(NewTrackSetFromIDs(u, []string{"b", "c", "d"}))
			},
			expected: []string{"b", "c"},
		},
		{
			name: "unite",
			apply: func(ts *TrackSet) {
				ts.Unite(NewTrackSetFromIDs(u, []string{"d"}))
			},
			expected: []string{"a", "b", "c", "d"},
		},
		{
			name: "subtract set",
			apply: func(ts *TrackSet) {
				ts.SubtractSet(NewTrackSetFromIDs(u, []string{"a", "d"}))
			},
			expected: []string{"b", "c"},
		},
		{
			name: "intersect ids",
			apply: func(ts *TrackSet) {
				ts.IntersectIDs([]string{"c", "x"})
			},
			expected: []string{"c"},
		},
		{
			name: "intersect with outstanding is a no-op",
			apply: func(ts *TrackSet) {
				ts.Intersect(Outstanding())
			},
			expected: []string{"a", "b", "c"},
		},
		{
			name: "reset to full",
			apply: func(ts *TrackSet) {
				ts.Reset(true)
			},
			expected: []string{"a", "b", "c", "d"},
		},
		{
			name: "reset to empty",
			apply: func(ts *TrackSet) {
				ts.Reset(false)
			},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := NewTrackSetFromIDs(u, []string{"a", "b", "c"})
			tt.apply(&ts)
			assert.Equal(t, tt.expected, ts.IDs())
		})
	}
}

func TestTrackSet_DifferentUniverses(t *testing.T) {
	u1 := newTestUniverse("a", "b", "c")
	u2 := newTestUniverse("c", "b", "z")

	ts := NewTrackSet(u1, true)
	ts.Intersect(NewTrackSet(u2, true))
	assert.Equal(t, []string{"b", "c"}, ts.IDs())
}

func TestTrackSet_Clone(t *testing.T) {
	u := newTestUniverse("a", "b")
	ts := NewTrackSet(u, true)

	clone := ts.Clone()
	clone.Subtract("a")

	assert.Equal(t, 2, ts.TrackCount())
	assert.Equal(t, 1, clone.TrackCount())
	assert.True(t, Outstanding().Clone().IsOutstanding())
}

func TestTrackSet_RandomTrack(t *testing.T) {
	u := newTestUniverse("a", "b", "c", "d")
	rng := rand.New(rand.NewPCG(1, 2))

	t.Run("empty set has no track", func(t *testing.T) {
		id, ok := NewTrackSet(u, false).RandomTrack(rng)
		assert.False(t, ok)
		assert.Empty(t, id)
	})

	t.Run("only members are drawn", func(t *testing.T) {
		ts := NewTrackSetFromIDs(u, []string{"b", "d"})
		seen := map[string]int{}
		for i := 0; i < 200; i++ {
			id, ok := ts.RandomTrack(rng)
			require.True(t, ok)
			seen[id]++
		}
		assert.Len(t, seen, 2)
		assert.Positive(t, seen["b"])
		assert.Positive(t, seen["d"])
	})

	t.Run("nil source falls back to the global one", func(t *testing.T) {
		id, ok := NewTrackSetFromIDs(u, []string{"c"}).RandomTrack(nil)
		assert.True(t, ok)
		assert.Equal(t, "c", id)
	})
}
