package bias

import (
	"context"

	"github.com/osa030/dynbox/internal/app/dynamic"
)

func init() {
	Register(Factory{
		Name:        "random",
		Description: "Accepts every track of the collection",
		New: func(_ map[string]any, _ []dynamic.Bias, _ Deps) (dynamic.Bias, error) {
			return NewRandom(), nil
		},
	})
}

// Random matches every track.
type Random struct{}

// NewRandom creates a random bias.
func NewRandom() *Random {
	return &Random{}
}

// Name returns the bias type name.
func (b *Random) Name() string {
	return "random"
}

// MatchingTracks returns the full universe.
func (b *Random) MatchingTracks(_ context.Context, req dynamic.Request) dynamic.TrackSet {
	return dynamic.NewTrackSet(req.Universe, true)
}

// TrackMatches always returns true.
func (b *Random) TrackMatches(int, []string, int) bool {
	return true
}
