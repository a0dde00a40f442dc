package bias

import (
	"context"

	"github.com/osa030/dynbox/internal/app/dynamic"
)

func init() {
	Register(Factory{
		Name:        "and",
		Description: "Matches tracks accepted by all child biases",
		Composite:   true,
		New: func(_ map[string]any, children []dynamic.Bias, _ Deps) (dynamic.Bias, error) {
			return NewAnd(children...), nil
		},
	})
}

// And matches the tracks every child bias matches.
// Without children it matches everything.
type And struct {
	children []dynamic.Bias
}

// NewAnd creates an and bias over children.
func NewAnd(children ...dynamic.Bias) *And {
	return &And{children: children}
}

// Name returns the bias type name.
func (b *And) Name() string {
	return "and"
}

// MatchingTracks intersects the results of all children. It stops asking
// once the intersection is empty.
func (b *And) MatchingTracks(ctx context.Context, req dynamic.Request) dynamic.TrackSet {
	c := newCombiner(
		dynamic.NewTrackSet(req.Universe, true),
		func(result *dynamic.TrackSet, part dynamic.TrackSet) { result.Intersect(part) },
		dynamic.TrackSet.IsEmpty,
		req.Ready,
	)
	askChildren(ctx, c, b.children, req)
	return c.seal()
}

// TrackMatches reports whether every child matches.
func (b *And) TrackMatches(position int, playlist []string, contextCount int) bool {
	for _, child := range b.children {
		if !child.TrackMatches(position, playlist, contextCount) {
			return false
		}
	}
	return true
}

// askChildren queries each child through c until the result is decided.
func askChildren(ctx context.Context, c *combiner, children []dynamic.Bias, req dynamic.Request) {
	for _, child := range children {
		if c.isDecided() {
			return
		}
		c.ask(func(ready func(dynamic.TrackSet)) dynamic.TrackSet {
			childReq := req
			childReq.Ready = ready
			return child.MatchingTracks(ctx, childReq)
		})
	}
}
