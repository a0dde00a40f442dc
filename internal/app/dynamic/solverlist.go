package dynamic

// solverList is the working playlist of a solve: a fixed context prefix
// followed by the tracks the search appended.
type solverList struct {
	tracks       []string
	contextCount int
	finalCount   int
}

func newSolverList(context []string, n int) *solverList {
	tracks := make([]string, len(context), len(context)+n)
	copy(tracks, context)
	return &solverList{
		tracks:       tracks,
		contextCount: len(context),
		finalCount:   len(context) + n,
	}
}

func (l *solverList) appendTrack(id string) {
	l.tracks = append(l.tracks, id)
}

// removeLast drops the last appended track. The context is never touched.
func (l *solverList) removeLast() {
	if len(l.tracks) > l.contextCount {
		l.tracks = l.tracks[:len(l.tracks)-1]
	}
}

func (l *solverList) isFull() bool {
	return len(l.tracks) >= l.finalCount
}

func (l *solverList) appended() int {
	return len(l.tracks) - l.contextCount
}

func (l *solverList) snapshot() []string {
	out := make([]string, len(l.tracks))
	copy(out, l.tracks)
	return out
}

// solution returns the appended tail.
func (l *solverList) solution() []string {
	out := make([]string, l.appended())
	copy(out, l.tracks[l.contextCount:])
	return out
}

// withoutDuplicates returns a copy of set with every track of playlist
// removed, except the one at position.
func withoutDuplicates(position int, playlist []string, set TrackSet) TrackSet {
	out := set.Clone()
	for i, id := range playlist {
		if i == position {
			continue
		}
		out.Subtract(id)
	}
	return out
}
