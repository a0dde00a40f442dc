package dynamic

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dynbox/internal/domain/track"
)

// Defaults for the search heuristics.
const (
	DefaultTimeBudget        = 5 * time.Second
	DefaultMaxTries          = 5
	DefaultFirstSlotMinTries = 1

	// maxLookupAttempts bounds the picks per slot rejected by the track resolver.
	maxLookupAttempts = 5
)

// Errors
var (
	ErrNilBias       = errors.New("bias is nil")
	ErrNilCollection = errors.New("collection is nil")
	ErrNegativeCount = errors.New("track count must not be negative")
)

// Stats describes the work done by one run.
type Stats struct {
	UniverseSize  int
	BiasRequests  int
	Backtracks    int
	BudgetExpired bool
	Elapsed       time.Duration
}

// Option configures a Solver.
type Option func(*Solver)

// WithAllowDuplicates lets a track appear more than once in the working list.
func WithAllowDuplicates(allow bool) Option {
	return func(s *Solver) { s.allowDuplicates = allow }
}

// WithTimeBudget sets the wall-clock budget of the search.
func WithTimeBudget(d time.Duration) Option {
	return func(s *Solver) { s.timeBudget = d }
}

// WithMaxTries sets how many candidates are tried per slot before backtracking.
func WithMaxTries(n int) Option {
	return func(s *Solver) { s.maxTries = n }
}

// WithFirstSlotMinTries sets the minimum number of tries for the first slot.
func WithFirstSlotMinTries(n int) Option {
	return func(s *Solver) { s.firstSlotMinTries = n }
}

// WithObserver registers fn to receive progress and completion events.
// fn is called from the goroutine executing Run.
func WithObserver(fn func(Event)) Option {
	return func(s *Solver) { s.observer = fn }
}

// WithRand sets the random source used to pick candidates.
func WithRand(rng *rand.Rand) Option {
	return func(s *Solver) { s.rng = rng }
}

// WithTrackResolver sets a lookup that rejects picked ids which do not
// resolve to a real track.
func WithTrackResolver(fn func(id string) bool) Option {
	return func(s *Solver) { s.resolver = fn }
}

// WithClock replaces time.Now for budget accounting.
func WithClock(now func() time.Time) Option {
	return func(s *Solver) { s.now = now }
}

// Solver builds one playlist extension of n tracks that satisfies a bias.
// A Solver is single use: Run executes the search once.
type Solver struct {
	id      string
	n       int
	bias    Bias
	context []string

	allowDuplicates   bool
	timeBudget        time.Duration
	maxTries          int
	firstSlotMinTries int
	observer          func(Event)
	rng               *rand.Rand
	resolver          func(string) bool
	now               func() time.Time

	// ctx is passed to the collection and biases; cancelled on abort and after Run.
	ctx    context.Context
	cancel context.CancelFunc

	aborted atomic.Bool
	started atomic.Bool

	mu           sync.Mutex
	cond         *sync.Cond
	universe     *Universe
	universeDone bool
	step         uint64   // Current bias request
	reply        TrackSet // Result delivered for step
	replied      bool
	solution     []string
	stats        Stats

	// Search state, owned by the goroutine executing Run.
	list      *solverList
	best      []string
	startTime time.Time
	progress  int
}

// NewSolver creates a solver for n tracks following the contextIDs and
// starts fetching the universe from collection.
func NewSolver(n int, bias Bias, contextIDs []string, collection Collection, opts ...Option) (*Solver, error) {
	if bias == nil {
		return nil, ErrNilBias
	}
	if collection == nil {
		return nil, ErrNilCollection
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrNegativeCount, "n=%d", n)
	}

	s := &Solver{
		id:                uuid.New().String(),
		n:                 n,
		bias:              bias,
		context:           append([]string(nil), contextIDs...),
		timeBudget:        DefaultTimeBudget,
		maxTries:          DefaultMaxTries,
		firstSlotMinTries: DefaultFirstSlotMinTries,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s.cond = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	go s.fetchUniverse(collection)
	return s, nil
}

// ID returns the unique solver id carried by its events.
func (s *Solver) ID() string {
	return s.id
}

// RequestAbort stops the search at the next step. Safe to call from any
// goroutine and any number of times.
func (s *Solver) RequestAbort() {
	if !s.aborted.CompareAndSwap(false, true) {
		return
	}
	zlog.Debug().Msgf("solver abort requested: solver=%s", s.id)
	s.cancel()
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Success reports whether the run finished without an abort request.
func (s *Solver) Success() bool {
	return !s.aborted.Load()
}

// Solution returns the generated tracks, context excluded.
// Valid once Run has returned.
func (s *Solver) Solution() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.solution...)
}

// SolutionTracks resolves Solution against the universe.
func (s *Solver) SolutionTracks() []track.Track {
	u := s.Universe()
	ids := s.Solution()
	tracks := make([]track.Track, 0, len(ids))
	for _, id := range ids {
		if t, ok := u.Track(id); ok {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// Universe returns the fetched universe, or nil while the query is running.
func (s *Solver) Universe() *Universe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.universe
}

// Stats returns the statistics of the run.
func (s *Solver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Solver) fetchUniverse(collection Collection) {
	var tracks []track.Track
	err := collection.QueryTracks(s.ctx, func(batch []track.Track) {
		tracks = append(tracks, batch...)
	})
	if err != nil && !s.aborted.Load() {
		zlog.Error().Msgf("universe query failed, continuing with partial universe: solver=%s tracks=%d error=%v",
			s.id, len(tracks), err)
	}
	u := NewUniverse(tracks)

	s.mu.Lock()
	s.universe = u
	s.universeDone = true
	s.stats.UniverseSize = u.Len()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Solver) waitUniverse() (*Universe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.universeDone && !s.aborted.Load() {
		s.cond.Wait()
	}
	if s.aborted.Load() {
		return nil, false
	}
	return s.universe, true
}

// Run executes the search. Cancelling ctx has the effect of RequestAbort.
// Run never fails: a short or empty solution is a valid outcome.
func (s *Solver) Run(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		zlog.Warn().Msgf("solver already ran: solver=%s", s.id)
		return
	}
	stop := context.AfterFunc(ctx, s.RequestAbort)
	defer stop()
	defer s.cancel()

	s.emit(EventTotalSteps, TotalSteps)

	s.list = newSolverList(s.context, s.n)
	s.best = s.list.snapshot()

	if u, ok := s.waitUniverse(); ok {
		zlog.Debug().Msgf("solver started: solver=%s bias=%s requested=%d context=%d universe=%d",
			s.id, s.bias.Name(), s.n, len(s.context), u.Len())
		s.startTime = s.now()
		s.addTracks(u)
	}

	s.finish()
}

func (s *Solver) addTracks(u *Universe) {
	if s.stopped() {
		return
	}

	s.reportProgress()

	if s.list.isFull() {
		return
	}

	set := s.matchingTracks(u)
	if set.IsOutstanding() {
		return
	}
	// The bias may hold on to the returned set.
	if s.allowDuplicates {
		set = set.Clone()
	} else {
		set = withoutDuplicates(len(s.list.tracks), s.list.tracks, set)
	}
	if set.IsEmpty() {
		return
	}

	tries := s.maxTries
	if s.list.appended() == 0 && tries < s.firstSlotMinTries {
		tries = s.firstSlotMinTries
	}
	for try := 0; try < tries; try++ {
		if try > 0 && s.stopped() {
			return
		}

		id, ok := s.pick(&set)
		if !ok {
			return
		}

		s.list.appendTrack(id)
		s.remember()
		s.addTracks(u)

		if s.list.isFull() {
			return
		}
		// Out of time or aborted: keep the partial list.
		if s.stopped() {
			return
		}

		s.list.removeLast()
		s.mu.Lock()
		s.stats.Backtracks++
		s.mu.Unlock()

		set.Subtract(id)
		if set.IsEmpty() {
			break
		}
	}
}

// stopped reports whether the search must not go further.
func (s *Solver) stopped() bool {
	if s.aborted.Load() {
		return true
	}
	if s.now().Sub(s.startTime) < s.timeBudget {
		return false
	}
	s.mu.Lock()
	if !s.stats.BudgetExpired {
		s.stats.BudgetExpired = true
		zlog.Debug().Msgf("solver time budget exceeded: solver=%s budget=%v appended=%d",
			s.id, s.timeBudget, s.list.appended())
	}
	s.mu.Unlock()
	return true
}

// reportProgress catches the progress counter up to the appended share.
func (s *Solver) reportProgress() {
	if s.n == 0 {
		return
	}
	target := TotalSteps * s.list.appended() / s.n
	for s.progress < target && s.progress < TotalSteps {
		s.progress++
		s.emit(EventIncrementProgress, s.progress)
	}
}

// remember keeps the longest working list seen so far.
func (s *Solver) remember() {
	if len(s.list.tracks) > len(s.best) {
		s.best = s.list.snapshot()
	}
}

// matchingTracks asks the bias for the candidates of the next position and
// waits for an outstanding result. It returns an outstanding set on abort.
func (s *Solver) matchingTracks(u *Universe) TrackSet {
	s.mu.Lock()
	s.step++
	step := s.step
	s.reply = TrackSet{}
	s.replied = false
	s.stats.BiasRequests++
	s.mu.Unlock()

	req := Request{
		Playlist:     s.list.snapshot(),
		ContextCount: s.list.contextCount,
		FinalCount:   s.list.finalCount,
		Universe:     u,
		Ready:        func(ts TrackSet) { s.deliver(step, ts) },
	}
	set := s.bias.MatchingTracks(s.ctx, req)
	if !set.IsOutstanding() {
		return set
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.replied && !s.aborted.Load() {
		s.cond.Wait()
	}
	if !s.replied {
		return TrackSet{}
	}
	return s.reply
}

// deliver stores an asynchronous bias result. Results of earlier steps
// and repeated deliveries are dropped.
func (s *Solver) deliver(step uint64, ts TrackSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step != s.step || s.replied {
		return
	}
	s.reply = ts
	s.replied = true
	s.cond.Broadcast()
}

// pick draws a random candidate, skipping ids the resolver rejects.
func (s *Solver) pick(set *TrackSet) (string, bool) {
	for attempt := 1; attempt <= maxLookupAttempts; attempt++ {
		id, ok := set.RandomTrack(s.rng)
		if !ok {
			return "", false
		}
		if s.resolver == nil || s.resolver(id) {
			return id, true
		}
		zlog.Warn().Msgf("picked track does not resolve: solver=%s id=%s attempt=%d", s.id, id, attempt)
		set.Subtract(id)
	}
	return "", false
}

func (s *Solver) finish() {
	var solution []string
	if s.list.isFull() {
		solution = s.list.solution()
	} else {
		solution = append([]string{}, s.best[s.list.contextCount:]...)
	}

	var elapsed time.Duration
	if !s.startTime.IsZero() {
		elapsed = s.now().Sub(s.startTime)
	}

	s.mu.Lock()
	s.solution = solution
	s.stats.Elapsed = elapsed
	stats := s.stats
	s.mu.Unlock()

	success := s.Success()
	zlog.Info().Msgf("solver finished: solver=%s requested=%d produced=%d success=%v elapsed=%v backtracks=%d",
		s.id, s.n, len(solution), success, stats.Elapsed, stats.Backtracks)

	s.emit(EventEndProgressOperation, s.progress)
	if success {
		s.emit(EventCompleted, len(solution))
	} else {
		s.emit(EventFailed, len(solution))
	}
	s.emit(EventDone, len(solution))
}

func (s *Solver) emit(t EventType, value int) {
	if s.observer == nil {
		return
	}
	s.observer(Event{SolverID: s.id, Type: t, Value: value})
}
