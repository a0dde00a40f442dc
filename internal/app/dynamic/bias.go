package dynamic

import "context"

// Request describes one matching step of a solve.
type Request struct {
	Playlist     []string  // Working list, context first; must not be modified
	ContextCount int       // Length of the fixed context prefix
	FinalCount   int       // Target list length (exclusive upper position)
	Universe     *Universe // Candidate tracks of this solve
	// Ready delivers the result of a bias that returned an outstanding set.
	// It must be called exactly once and may be called from any goroutine,
	// including before MatchingTracks returns.
	Ready func(TrackSet)
}

// Position returns the playlist position the next track would fill.
func (r Request) Position() int {
	return len(r.Playlist)
}

// Bias narrows the candidate tracks for the next playlist position.
type Bias interface {
	// Name returns the registered bias type name.
	Name() string

	// MatchingTracks returns the tracks that would satisfy the bias when
	// appended to req.Playlist. It may return Outstanding() and deliver
	// the result later through req.Ready.
	MatchingTracks(ctx context.Context, req Request) TrackSet

	// TrackMatches reports whether the track at position satisfies the
	// bias given the tracks before it.
	TrackMatches(position int, playlist []string, contextCount int) bool
}
