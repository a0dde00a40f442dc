package bias

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/domain/track"
)

func testUniverse() *dynamic.Universe {
	return dynamic.NewUniverse([]track.Track{
		{ID: "a1", Name: "Bohemian Rhapsody", Artists: []string{"Queen"}, Album: "A Night at the Opera",
			Genres: []string{"rock"}, Year: 1975, Duration: 354 * time.Second, Popularity: 90},
		{ID: "a2", Name: "Bohemian Rhapsody - 2011 Remaster", Artists: []string{"Queen"}, Album: "Greatest Hits",
			Genres: []string{"rock"}, Year: 2011, Duration: 355 * time.Second, Popularity: 80},
		{ID: "b1", Name: "Yesterday", Artists: []string{"The Beatles"}, Album: "Help!",
			Genres: []string{"pop"}, Year: 1965, Duration: 125 * time.Second, Popularity: 85},
		{ID: "b2", Name: "Yesterday", Artists: []string{"Paul McCartney"}, Album: "Unplugged",
			Genres: []string{"pop"}, Year: 1991, Duration: 130 * time.Second, Popularity: 40},
		{ID: "c1", Name: "Hotel California", Artists: []string{"Eagles"}, Album: "Hotel California",
			Genres: []string{"rock"}, Year: 1976, Duration: 391 * time.Second, Popularity: 88},
		{ID: "d1", Name: "Dreams", Artists: []string{"Fleetwood Mac"}, Album: "Rumours",
			Genres: []string{"rock", "pop"}, Year: 1977, Duration: 257 * time.Second, Popularity: 87},
		{ID: "e1", Name: "So What", Artists: []string{"Miles Davis"}, Album: "Kind of Blue",
			Genres: []string{"jazz"}, Year: 1959, Duration: 562 * time.Second, Popularity: 70},
	})
}

func newRequest(u *dynamic.Universe, finalCount int, playlist ...string) dynamic.Request {
	return dynamic.Request{
		Playlist:   playlist,
		FinalCount: finalCount,
		Universe:   u,
	}
}

// resolve returns the result of MatchingTracks, waiting for an outstanding
// result to be delivered.
func resolve(t *testing.T, b dynamic.Bias, req dynamic.Request) dynamic.TrackSet {
	t.Helper()
	ch := make(chan dynamic.TrackSet, 1)
	req.Ready = func(ts dynamic.TrackSet) { ch <- ts }

	ts := b.MatchingTracks(context.Background(), req)
	if !ts.IsOutstanding() {
		return ts
	}
	select {
	case ts := <-ch:
		return ts
	case <-time.After(2 * time.Second):
		t.Fatal("result was not delivered")
		return dynamic.Outstanding()
	}
}

// stubBias matches a fixed set of tracks.
type stubBias struct {
	accept map[string]bool // nil matches every track
	async  bool
	calls  atomic.Int32
}

func newStub(async bool, ids ...string) *stubBias {
	b := &stubBias{async: async}
	if ids != nil {
		b.accept = make(map[string]bool, len(ids))
		for _, id := range ids {
			b.accept[id] = true
		}
	}
	return b
}

func (b *stubBias) Name() string { return "stub" }

func (b *stubBias) set(u *dynamic.Universe) dynamic.TrackSet {
	if b.accept == nil {
		return dynamic.NewTrackSet(u, true)
	}
	ids := make([]string, 0, len(b.accept))
	for id := range b.accept {
		ids = append(ids, id)
	}
	return dynamic.NewTrackSetFromIDs(u, ids)
}

func (b *stubBias) MatchingTracks(_ context.Context, req dynamic.Request) dynamic.TrackSet {
	b.calls.Add(1)
	if !b.async {
		return b.set(req.Universe)
	}
	go req.Ready(b.set(req.Universe))
	return dynamic.Outstanding()
}

func (b *stubBias) TrackMatches(position int, playlist []string, _ int) bool {
	return b.accept == nil || b.accept[playlist[position]]
}
