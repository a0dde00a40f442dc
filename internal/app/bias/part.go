package bias

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/osa030/dynbox/internal/app/dynamic"
)

// PartSettings represents settings for the part bias.
type PartSettings struct {
	// Weights is the share of generated tracks each child should match.
	// Empty means equal shares.
	Weights []float64 `mapstructure:"weights" validate:"dive,gte=0"`
}

func init() {
	Register(Factory{
		Name:        "part",
		Description: "Splits the generated tracks between child biases by weight",
		Composite:   true,
		New: func(settings map[string]any, children []dynamic.Bias, _ Deps) (dynamic.Bias, error) {
			var s PartSettings
			if err := decodeSettings(settings, &s); err != nil {
				return nil, err
			}
			return NewPart(children, s.Weights)
		},
	})
}

// Part asks each child bias to match its share of the generated tracks.
type Part struct {
	children []dynamic.Bias
	weights  []float64
}

// NewPart creates a part bias. weights must be empty or hold one
// non-negative weight per child; they are normalized to sum to one.
func NewPart(children []dynamic.Bias, weights []float64) (*Part, error) {
	if len(weights) == 0 {
		weights = make([]float64, len(children))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(children) {
		return nil, errors.Newf("weight count mismatch: weights=%d biases=%d", len(weights), len(children))
	}

	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return nil, errors.Newf("negative weight: %v", w)
		}
		sum += w
	}

	normalized := make([]float64, len(weights))
	for i, w := range weights {
		if sum == 0 {
			normalized[i] = 1 / float64(len(weights))
		} else {
			normalized[i] = w / sum
		}
	}
	return &Part{children: children, weights: normalized}, nil
}

// Name returns the bias type name.
func (b *Part) Name() string {
	return "part"
}

// Weights returns the normalized weights.
func (b *Part) Weights() []float64 {
	return append([]float64(nil), b.weights...)
}

// MatchingTracks unites the results of the children that have not yet
// matched their share of the generated positions.
func (b *Part) MatchingTracks(ctx context.Context, req dynamic.Request) dynamic.TrackSet {
	state := b.match(req.Playlist, req.ContextCount, req.FinalCount-req.ContextCount)

	c := newCombiner(
		dynamic.NewTrackSet(req.Universe, false),
		func(result *dynamic.TrackSet, part dynamic.TrackSet) { result.Unite(part) },
		dynamic.TrackSet.IsFull,
		req.Ready,
	)
	for source, child := range b.children {
		if state.sourceFlow[source] >= state.sourceCapacity[source] {
			continue
		}
		if c.isDecided() {
			break
		}
		c.ask(func(ready func(dynamic.TrackSet)) dynamic.TrackSet {
			childReq := req
			childReq.Ready = ready
			return child.MatchingTracks(ctx, childReq)
		})
	}
	return c.seal()
}

// TrackMatches reports whether the track at position is assigned to one
// of the children in a maximum matching of the playlist.
func (b *Part) TrackMatches(position int, playlist []string, contextCount int) bool {
	drain := position - contextCount
	if drain < 0 || position >= len(playlist) {
		return true
	}
	state := b.match(playlist, contextCount, len(playlist)-contextCount)
	return state.drainSource[drain] >= 0
}

// matchState is a maximum matching between children (sources with a
// capacity derived from their weight) and generated positions (drains with
// capacity one). A source and a drain are connected when the child accepts
// the track at that position.
type matchState struct {
	sourceCapacity []int
	sourceFlow     []int
	drainSource    []int // -1 when unmatched
	edges          [][]bool
}

// match computes the matching for drainCount generated positions, of which
// the ones already present in playlist can be matched.
func (b *Part) match(playlist []string, contextCount, drainCount int) *matchState {
	drainCount = max(drainCount, 0)
	sources := len(b.children)

	state := &matchState{
		sourceCapacity: make([]int, sources),
		sourceFlow:     make([]int, sources),
		drainSource:    make([]int, drainCount),
		edges:          make([][]bool, sources),
	}

	assigned := 0
	for source := 0; source < sources-1; source++ {
		state.sourceCapacity[source] = int(math.Round(b.weights[source] * float64(drainCount)))
		assigned += state.sourceCapacity[source]
	}
	if sources > 0 {
		state.sourceCapacity[sources-1] = max(drainCount-assigned, 0)
	}

	filled := min(len(playlist)-contextCount, drainCount)
	for source, child := range b.children {
		state.edges[source] = make([]bool, drainCount)
		for drain := 0; drain < filled; drain++ {
			state.edges[source][drain] = child.TrackMatches(drain+contextCount, playlist, contextCount)
		}
	}

	for drain := range state.drainSource {
		state.drainSource[drain] = -1
	}
	for drain := 0; drain < filled; drain++ {
		state.augment(drain, make([]bool, sources))
	}
	return state
}

// augment tries to match drain, moving earlier assignments along an
// alternating path when needed.
func (s *matchState) augment(drain int, visited []bool) bool {
	for source := range s.edges {
		if visited[source] || !s.edges[source][drain] {
			continue
		}
		visited[source] = true

		if s.sourceFlow[source] < s.sourceCapacity[source] {
			s.sourceFlow[source]++
			s.drainSource[drain] = source
			return true
		}
		for other, owner := range s.drainSource {
			if owner != source || other == drain {
				continue
			}
			if s.augment(other, visited) {
				s.drainSource[drain] = source
				return true
			}
		}
	}
	return false
}
