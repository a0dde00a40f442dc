package bias

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/dynbox/internal/app/dynamic"
)

func TestIfElse_MatchingTracks(t *testing.T) {
	u := testUniverse()

	tests := []struct {
		name     string
		children []dynamic.Bias
		want     []string
	}{
		{
			name: "no children matches nothing",
			want: []string{},
		},
		{
			name:     "first child wins",
			children: []dynamic.Bias{newStub(false, "a1"), newStub(false, "b1")},
			want:     []string{"a1"},
		},
		{
			name:     "empty child falls through",
			children: []dynamic.Bias{newStub(false, "missing"), newStub(false, "b1", "c1")},
			want:     []string{"b1", "c1"},
		},
		{
			name:     "async empty child falls through",
			children: []dynamic.Bias{newStub(true, "missing"), newStub(false, "c1")},
			want:     []string{"c1"},
		},
		{
			name:     "async children",
			children: []dynamic.Bias{newStub(true, "missing"), newStub(true, "d1")},
			want:     []string{"d1"},
		},
		{
			name:     "every child empty",
			children: []dynamic.Bias{newStub(true, "missing"), newStub(false, "missing")},
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolve(t, NewIfElse(tt.children...), newRequest(u, 3))
			require.False(t, got.IsOutstanding())
			assert.ElementsMatch(t, tt.want, got.IDs())
		})
	}
}

func TestIfElse_StopsAtFirstMatch(t *testing.T) {
	first, second := newStub(false, "a1"), newStub(false, "b1")
	got := NewIfElse(first, second).MatchingTracks(context.Background(), newRequest(testUniverse(), 3))

	assert.Equal(t, []string{"a1"}, got.IDs())
	assert.Equal(t, int32(0), second.calls.Load(), "later children are not asked")
}

func TestIfElse_TrackMatches(t *testing.T) {
	b := NewIfElse(newStub(false, "a1"), newStub(false, "b1"))
	assert.True(t, b.TrackMatches(0, []string{"b1"}, 0))
	assert.False(t, b.TrackMatches(0, []string{"c1"}, 0))
}
