package dynamic

import (
	"math/rand/v2"

	"github.com/bits-and-blooms/bitset"
)

// TrackSet is a set of track IDs over a Universe, stored as one bit per
// universe position.
//
// The zero value is an outstanding set: its contents are not known yet
// because a bias is still computing them. Copies of a TrackSet share
// storage; use Clone before mutating a set that is also held elsewhere.
type TrackSet struct {
	universe *Universe
	bits     *bitset.BitSet
	known    bool
}

// Outstanding returns a set whose contents are still being computed.
func Outstanding() TrackSet {
	return TrackSet{}
}

// NewTrackSet returns a set over u that holds every track when full is
// true and no track otherwise.
func NewTrackSet(u *Universe, full bool) TrackSet {
	ts := TrackSet{
		universe: u,
		bits:     bitset.New(uint(u.Len())),
		known:    true,
	}
	if full {
		ts.fill()
	}
	return ts
}

// NewTrackSetFromIDs returns a set over u holding the given ids.
// IDs outside the universe are ignored.
func NewTrackSetFromIDs(u *Universe, ids []string) TrackSet {
	ts := NewTrackSet(u, false)
	ts.UniteIDs(ids)
	return ts
}

func (ts *TrackSet) fill() {
	if n := uint(ts.universe.Len()); n > 0 {
		ts.bits.FlipRange(0, n)
	}
}

// IsOutstanding reports whether the contents are not available yet.
func (ts TrackSet) IsOutstanding() bool {
	return !ts.known
}

// Universe returns the universe the set is defined over.
func (ts TrackSet) Universe() *Universe {
	return ts.universe
}

// TrackCount returns the number of tracks in the set.
// Outstanding sets count as empty.
func (ts TrackSet) TrackCount() int {
	if !ts.known {
		return 0
	}
	return int(ts.bits.Count())
}

// IsEmpty reports whether the set holds no track.
func (ts TrackSet) IsEmpty() bool {
	return ts.TrackCount() == 0
}

// IsFull reports whether the set holds every track of its universe.
func (ts TrackSet) IsFull() bool {
	return ts.known && ts.TrackCount() == ts.universe.Len()
}

// Contains reports whether id is a member.
func (ts TrackSet) Contains(id string) bool {
	if !ts.known {
		return false
	}
	i, ok := ts.universe.Index(id)
	return ok && ts.bits.Test(uint(i))
}

// IDs returns the members in universe order.
func (ts TrackSet) IDs() []string {
	if !ts.known {
		return nil
	}
	ids := make([]string, 0, ts.bits.Count())
	for i, ok := ts.bits.NextSet(0); ok; i, ok = ts.bits.NextSet(i + 1) {
		ids = append(ids, ts.universe.ID(int(i)))
	}
	return ids
}

// Clone returns an independent copy of the set.
func (ts TrackSet) Clone() TrackSet {
	if !ts.known {
		return TrackSet{}
	}
	return TrackSet{universe: ts.universe, bits: ts.bits.Clone(), known: true}
}

// Reset discards the contents and makes the set full or empty.
func (ts *TrackSet) Reset(full bool) {
	if !ts.known {
		return
	}
	ts.bits.ClearAll()
	if full {
		ts.fill()
	}
}

// Subtract removes id from the set. Removing a non-member is a no-op.
func (ts *TrackSet) Subtract(id string) {
	if !ts.known {
		return
	}
	if i, ok := ts.universe.Index(id); ok {
		ts.bits.Clear(uint(i))
	}
}

// Add inserts id. IDs outside the universe are ignored.
func (ts *TrackSet) Add(id string) {
	if !ts.known {
		return
	}
	if i, ok := ts.universe.Index(id); ok {
		ts.bits.Set(uint(i))
	}
}

// SubtractIDs removes all given ids from the set.
func (ts *TrackSet) SubtractIDs(ids []string) {
	for _, id := range ids {
		ts.Subtract(id)
	}
}

// SubtractSet removes every member of other.
func (ts *TrackSet) SubtractSet(other TrackSet) {
	if !ts.known || !other.known {
		return
	}
	if other.universe == ts.universe {
		ts.bits.InPlaceDifference(other.bits)
		return
	}
	ts.SubtractIDs(other.IDs())
}

// Unite adds every member of other.
func (ts *TrackSet) Unite(other TrackSet) {
	if !ts.known || !other.known {
		return
	}
	if other.universe == ts.universe {
		ts.bits.InPlaceUnion(other.bits)
		return
	}
	ts.UniteIDs(other.IDs())
}

// UniteIDs adds the given ids. IDs outside the universe are ignored.
func (ts *TrackSet) UniteIDs(ids []string) {
	if !ts.known {
		return
	}
	for _, id := range ids {
		ts.Add(id)
	}
}

// Intersect keeps only the members also present in other.
// Intersecting with an outstanding set leaves the set unchanged.
func (ts *TrackSet) Intersect(other TrackSet) {
	if !ts.known || !other.known {
		return
	}
	if other.universe == ts.universe {
		ts.bits.InPlaceIntersection(other.bits)
		return
	}
	ts.IntersectIDs(other.IDs())
}

// IntersectIDs keeps only the members listed in ids.
func (ts *TrackSet) IntersectIDs(ids []string) {
	if !ts.known {
		return
	}
	keep := bitset.New(uint(ts.universe.Len()))
	for _, id := range ids {
		if i, ok := ts.universe.Index(id); ok {
			keep.Set(uint(i))
		}
	}
	ts.bits.InPlaceIntersection(keep)
}

// RandomTrack returns a uniformly chosen member.
// It returns ("", false) when the set is empty or outstanding.
func (ts TrackSet) RandomTrack(rng *rand.Rand) (string, bool) {
	count := ts.TrackCount()
	if count == 0 {
		return "", false
	}
	var n int
	if rng != nil {
		n = rng.IntN(count)
	} else {
		n = rand.IntN(count)
	}
	for i, ok := ts.bits.NextSet(0); ok; i, ok = ts.bits.NextSet(i + 1) {
		if n == 0 {
			return ts.universe.ID(int(i)), true
		}
		n--
	}
	return "", false
}
