package bias

import (
	"context"

	"github.com/osa030/dynbox/internal/app/dynamic"
)

func init() {
	Register(Factory{
		Name:        "if_else",
		Description: "Matches the tracks of the first child bias that matches any track",
		Composite:   true,
		New: func(_ map[string]any, children []dynamic.Bias, _ Deps) (dynamic.Bias, error) {
			return NewIfElse(children...), nil
		},
	})
}

// IfElse asks its children in order and matches the result of the first
// child with a non-empty result. It matches nothing when every child is
// empty.
type IfElse struct {
	children []dynamic.Bias
}

// NewIfElse creates an if-else bias over children.
func NewIfElse(children ...dynamic.Bias) *IfElse {
	return &IfElse{children: children}
}

// Name returns the bias type name.
func (b *IfElse) Name() string {
	return "if_else"
}

// MatchingTracks returns the first non-empty child result. Once a child
// answers later, the remaining children are asked in the background and
// the result is delivered through req.Ready.
func (b *IfElse) MatchingTracks(ctx context.Context, req dynamic.Request) dynamic.TrackSet {
	for i := range b.children {
		ts, pending := b.ask(ctx, req, i)
		if ts.IsOutstanding() {
			go b.await(ctx, req, i, pending)
			return dynamic.Outstanding()
		}
		if !ts.IsEmpty() {
			return ts
		}
	}
	return dynamic.NewTrackSet(req.Universe, false)
}

// ask queries child i. An outstanding answer arrives on the returned channel.
func (b *IfElse) ask(ctx context.Context, req dynamic.Request, i int) (dynamic.TrackSet, <-chan dynamic.TrackSet) {
	pending := make(chan dynamic.TrackSet, 1)
	childReq := req
	childReq.Ready = func(ts dynamic.TrackSet) {
		select {
		case pending <- ts:
		default:
		}
	}
	return b.children[i].MatchingTracks(ctx, childReq), pending
}

// await waits for child i and continues with the children after it.
func (b *IfElse) await(ctx context.Context, req dynamic.Request, i int, pending <-chan dynamic.TrackSet) {
	deliver := func(ts dynamic.TrackSet) {
		if req.Ready != nil {
			req.Ready(ts)
		}
	}

	for {
		var ts dynamic.TrackSet
		select {
		case ts = <-pending:
		case <-ctx.Done():
			return
		}
		if !ts.IsEmpty() {
			deliver(ts)
			return
		}

		for {
			i++
			if i >= len(b.children) {
				deliver(dynamic.NewTrackSet(req.Universe, false))
				return
			}
			ts, pending = b.ask(ctx, req, i)
			if ts.IsOutstanding() {
				break
			}
			if !ts.IsEmpty() {
				deliver(ts)
				return
			}
		}
	}
}

// TrackMatches reports whether any child matches.
func (b *IfElse) TrackMatches(position int, playlist []string, contextCount int) bool {
	for _, child := range b.children {
		if child.TrackMatches(position, playlist, contextCount) {
			return true
		}
	}
	return false
}
