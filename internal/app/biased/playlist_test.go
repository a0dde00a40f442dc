package biased

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/dynbox/internal/app/bias"
	"github.com/osa030/dynbox/internal/app/collection"
	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/app/jobs"
	"github.com/osa030/dynbox/internal/app/notification"
	"github.com/osa030/dynbox/internal/domain/track"
	"github.com/osa030/dynbox/internal/infra/metrics"
)

// stalledBias never delivers its result.
type stalledBias struct{}

func (stalledBias) Name() string { return "stalled" }

func (stalledBias) MatchingTracks(context.Context, dynamic.Request) dynamic.TrackSet {
	return dynamic.Outstanding()
}

func (stalledBias) TrackMatches(int, []string, int) bool { return true }

// panickingBias fails on every request.
type panickingBias struct{}

func (panickingBias) Name() string { return "panicking" }

func (panickingBias) MatchingTracks(context.Context, dynamic.Request) dynamic.TrackSet {
	panic("bias failure")
}

func (panickingBias) TrackMatches(int, []string, int) bool { return true }

func testCollection(n int) *collection.Static {
	tracks := make([]track.Track, n)
	for i := range tracks {
		tracks[i] = track.Track{ID: fmt.Sprintf("t%d", i), Name: fmt.Sprintf("Song %d", i)}
	}
	return collection.NewStatic(tracks, 2)
}

func newTestPlaylist(t *testing.T, b dynamic.Bias, n int, cfg Config, opts ...Option) *Playlist {
	t.Helper()
	queue := jobs.NewQueue(1, 4)
	t.Cleanup(queue.Close)

	p, err := New(b, testCollection(n), queue, cfg, opts...)
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	queue := jobs.NewQueue(1, 1)
	defer queue.Close()

	_, err := New(nil, testCollection(1), queue, Config{})
	assert.ErrorIs(t, err, ErrNilBias)
	_, err = New(bias.NewRandom(), nil, queue, Config{})
	assert.ErrorIs(t, err, ErrNilSource)
	_, err = New(bias.NewRandom(), testCollection(1), nil, Config{})
	assert.ErrorIs(t, err, ErrNilQueue)
}

func TestGenerate_ContinuesFromPlayed(t *testing.T) {
	p := newTestPlaylist(t, bias.NewRandom(), 6, Config{ContextSize: 10})
	ctx := context.Background()

	first, err := p.Generate(ctx, 3)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Len(t, first.IDs, 3)
	assert.Equal(t, first.IDs, track.IDs(first.Tracks))
	assert.Equal(t, first.IDs, p.Played())

	second, err := p.Generate(ctx, 3)
	require.NoError(t, err)
	require.Len(t, second.IDs, 3)
	all := append(append([]string{}, first.IDs...), second.IDs...)
	assert.ElementsMatch(t, []string{"t0", "t1", "t2", "t3", "t4", "t5"}, all, "played tracks are not repeated")

	// The collection is used up.
	third, err := p.Generate(ctx, 3)
	require.NoError(t, err)
	assert.True(t, third.Success)
	assert.Empty(t, third.IDs)
	assert.True(t, third.Underfilled())
	assert.False(t, p.Busy())
}

func TestContext(t *testing.T) {
	p := newTestPlaylist(t, bias.NewRandom(), 1, Config{ContextSize: 2})
	assert.Empty(t, p.Context())

	p.AddPlayed("a", "b", "c")
	assert.Equal(t, []string{"b", "c"}, p.Context())
	assert.Equal(t, []string{"a", "b", "c"}, p.Played())
}

func TestRequestTracks_Busy(t *testing.T) {
	p := newTestPlaylist(t, stalledBias{}, 5, Config{})

	require.NoError(t, p.RequestTracks(2))
	assert.True(t, p.Busy())
	assert.ErrorIs(t, p.RequestTracks(2), ErrBusy)

	p.RequestAbort()
	select {
	case r := <-p.Results():
		assert.False(t, r.Success)
		assert.Equal(t, 2, r.Requested)
		assert.Empty(t, r.IDs)
	case <-time.After(2 * time.Second):
		t.Fatal("no result after abort")
	}
	assert.False(t, p.Busy())
}

func TestGenerate_SolverPanic(t *testing.T) {
	p := newTestPlaylist(t, panickingBias{}, 5, Config{})

	done := make(chan Result, 1)
	go func() {
		r, _ := p.Generate(context.Background(), 3)
		done <- r
	}()

	select {
	case r := <-done:
		assert.False(t, r.Success)
		assert.Empty(t, r.IDs)
	case <-time.After(2 * time.Second):
		t.Fatal("no result after a failing solver")
	}
	assert.False(t, p.Busy())
	assert.NoError(t, p.RequestTracks(1), "the playlist accepts requests again")
}

func TestGenerate_DoesNotConsumeResults(t *testing.T) {
	p := newTestPlaylist(t, bias.NewRandom(), 6, Config{})

	require.NoError(t, p.RequestTracks(2))
	var requested Result
	select {
	case requested = <-p.Results():
	case <-time.After(2 * time.Second):
		t.Fatal("no result for RequestTracks")
	}

	generated, err := p.Generate(context.Background(), 2)
	require.NoError(t, err)
	assert.NotEqual(t, requested.SolverID, generated.SolverID)

	select {
	case r := <-p.Results():
		t.Fatalf("Generate result leaked to Results: %s", r.SolverID)
	default:
	}
}

func TestRequestTracks_NonPositive(t *testing.T) {
	p := newTestPlaylist(t, bias.NewRandom(), 5, Config{})
	assert.ErrorIs(t, p.RequestTracks(0), ErrNonPositive)
}

func TestRequestTimeout(t *testing.T) {
	p := newTestPlaylist(t, stalledBias{}, 5, Config{RequestTimeout: 20 * time.Millisecond})

	r, err := p.Generate(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, r.Success)
}

func TestGenerate_ContextCancelled(t *testing.T) {
	p := newTestPlaylist(t, stalledBias{}, 5, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	r, err := p.Generate(ctx, 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, r.Success)
}

func TestGenerate_MetricsAndNotifications(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewSolverMetrics(reg)
	require.NoError(t, err)

	notifier := notification.NewManager()
	stream := notification.NewChanStream(512)
	notifier.Subscribe(stream)

	p := newTestPlaylist(t, bias.NewRandom(), 4, Config{}, WithMetrics(m), WithNotifier(notifier),
		WithSolverOptions(dynamic.WithAllowDuplicates(false)))

	r, err := p.Generate(context.Background(), 6)
	require.NoError(t, err)
	assert.Len(t, r.IDs, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.ResultCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnderfilledTotal))

	notifier.Close()
	stream.Close()
	var events []dynamic.Event
	for n := range stream.C() {
		events = append(events, n.Event)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, dynamic.EventTotalSteps, events[0].Type)
	assert.Equal(t, dynamic.EventDone, events[len(events)-1].Type)
	assert.Equal(t, r.SolverID, events[0].SolverID)
}
