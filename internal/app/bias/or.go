package bias

import (
	"context"

	"github.com/osa030/dynbox/internal/app/dynamic"
)

func init() {
	Register(Factory{
		Name:        "or",
		Description: "Matches tracks accepted by any child bias",
		Composite:   true,
		New: func(_ map[string]any, children []dynamic.Bias, _ Deps) (dynamic.Bias, error) {
			return NewOr(children...), nil
		},
	})
}

// Or matches the tracks any child bias matches.
// Without children it matches nothing.
type Or struct {
	children []dynamic.Bias
}

// NewOr creates an or bias over children.
func NewOr(children ...dynamic.Bias) *Or {
	return &Or{children: children}
}

// Name returns the bias type name.
func (b *Or) Name() string {
	return "or"
}

// MatchingTracks unites the results of all children. It stops asking once
// the union covers the universe.
func (b *Or) MatchingTracks(ctx context.Context, req dynamic.Request) dynamic.TrackSet {
	c := newCombiner(
		dynamic.NewTrackSet(req.Universe, false),
		func(result *dynamic.TrackSet, part dynamic.TrackSet) { result.Unite(part) },
		dynamic.TrackSet.IsFull,
		req.Ready,
	)
	askChildren(ctx, c, b.children, req)
	return c.seal()
}

// TrackMatches reports whether any child matches.
func (b *Or) TrackMatches(position int, playlist []string, contextCount int) bool {
	for _, child := range b.children {
		if child.TrackMatches(position, playlist, contextCount) {
			return true
		}
	}
	return false
}
