// Package biased provides the playlist consumer that generates tracks
// with the bias solver, continuing from the tracks played so far.
package biased

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/app/jobs"
	"github.com/osa030/dynbox/internal/app/notification"
	"github.com/osa030/dynbox/internal/domain/track"
	"github.com/osa030/dynbox/internal/infra/metrics"
)

// Errors
var (
	ErrBusy        = errors.New("a solver is already running")
	ErrNilBias     = errors.New("bias is nil")
	ErrNilSource   = errors.New("collection is nil")
	ErrNilQueue    = errors.New("job queue is nil")
	ErrNonPositive = errors.New("track count must be positive")
)

const resultBuffer = 16

// Config represents playlist settings.
type Config struct {
	ContextSize    int           // Number of played tracks handed to the solver as context
	RequestTimeout time.Duration // Solvers running longer are aborted (0 = no limit)
}

// Result is the outcome of one request.
type Result struct {
	SolverID  string
	Requested int
	IDs       []string
	Tracks    []track.Track
	Success   bool // false when the solver was aborted
	Stats     dynamic.Stats
}

// Underfilled reports whether fewer tracks were produced than requested.
func (r Result) Underfilled() bool {
	return len(r.IDs) < r.Requested
}

// Option configures a Playlist.
type Option func(*Playlist)

// WithMetrics records every finished run.
func WithMetrics(m *metrics.SolverMetrics) Option {
	return func(p *Playlist) { p.metrics = m }
}

// WithNotifier forwards solver events to n.
func WithNotifier(n *notification.Manager) Option {
	return func(p *Playlist) { p.notifier = n }
}

// WithSolverOptions passes options to every solver.
func WithSolverOptions(opts ...dynamic.Option) Option {
	return func(p *Playlist) { p.solverOpts = append(p.solverOpts, opts...) }
}

// Playlist requests tracks from solvers, one solver at a time, and keeps
// the history of played tracks the next request continues from.
type Playlist struct {
	bias       dynamic.Bias
	collection dynamic.Collection
	queue      *jobs.Queue
	cfg        Config
	metrics    *metrics.SolverMetrics
	notifier   *notification.Manager
	solverOpts []dynamic.Option
	results    chan Result

	mu     sync.Mutex
	played []string
	solver *dynamic.Solver
	waiter chan Result // Receives the running solver's result instead of results
}

// New creates a playlist.
func New(bias dynamic.Bias, collection dynamic.Collection, queue *jobs.Queue, cfg Config, opts ...Option) (*Playlist, error) {
	if bias == nil {
		return nil, ErrNilBias
	}
	if collection == nil {
		return nil, ErrNilSource
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	if cfg.ContextSize < 0 {
		cfg.ContextSize = 0
	}

	p := &Playlist{
		bias:       bias,
		collection: collection,
		queue:      queue,
		cfg:        cfg,
		results:    make(chan Result, resultBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Results delivers the results of RequestTracks. Results of Generate
// are returned to its caller and never appear here.
func (p *Playlist) Results() <-chan Result {
	return p.results
}

// AddPlayed appends ids to the played history.
func (p *Playlist) AddPlayed(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, ids...)
}

// Played returns the played history.
func (p *Playlist) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// Context returns the tracks the next request continues from.
func (p *Playlist) Context() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contextLocked()
}

func (p *Playlist) contextLocked() []string {
	start := max(len(p.played)-p.cfg.ContextSize, 0)
	return append([]string(nil), p.played[start:]...)
}

// Busy reports whether a solver is running.
func (p *Playlist) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.solver != nil
}

// RequestTracks starts a solver for n tracks in the background. The result
// is delivered on Results.
func (p *Playlist) RequestTracks(n int) error {
	_, err := p.request(n, nil)
	return err
}

func (p *Playlist) request(n int, waiter chan Result) (*dynamic.Solver, error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrNonPositive, "n=%d", n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.solver != nil {
		return nil, ErrBusy
	}

	opts := append([]dynamic.Option{}, p.solverOpts...)
	if p.notifier != nil {
		opts = append(opts, dynamic.WithObserver(p.notifier.Observe()))
	}
	s, err := dynamic.NewSolver(n, p.bias, p.contextLocked(), p.collection, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create solver")
	}

	job := &solverJob{solver: s, playlist: p, requested: n}
	if err := p.queue.Enqueue(job); err != nil {
		s.RequestAbort()
		return nil, errors.Wrap(err, "failed to enqueue solver")
	}
	p.solver = s
	p.waiter = waiter

	zlog.Debug().Msgf("solver requested: id=%s requested=%d context=%d", s.ID(), n, len(p.played))
	return s, nil
}

// Generate requests n tracks and waits for the result. When ctx ends
// first, the solver is aborted and its partial result returned together
// with the context error.
func (p *Playlist) Generate(ctx context.Context, n int) (Result, error) {
	waiter := make(chan Result, 1)
	s, err := p.request(n, waiter)
	if err != nil {
		return Result{}, err
	}

	select {
	case r := <-waiter:
		return r, nil
	case <-ctx.Done():
		s.RequestAbort()
		return <-waiter, ctx.Err()
	}
}

// RequestAbort aborts the running solver, if any. Its partial result is
// still delivered.
func (p *Playlist) RequestAbort() {
	p.mu.Lock()
	s := p.solver
	p.mu.Unlock()

	if s != nil {
		s.RequestAbort()
	}
}

// finish records the outcome of s and releases the playlist for the next
// request.
func (p *Playlist) finish(s *dynamic.Solver, requested int) {
	ids := s.Solution()
	r := Result{
		SolverID:  s.ID(),
		Requested: requested,
		IDs:       ids,
		Tracks:    s.SolutionTracks(),
		Success:   s.Success(),
		Stats:     s.Stats(),
	}

	p.metrics.ObserveRun(metrics.Run{
		Success:    r.Success,
		Requested:  requested,
		Produced:   len(ids),
		Backtracks: r.Stats.Backtracks,
		Elapsed:    r.Stats.Elapsed,
	})

	p.mu.Lock()
	p.played = append(p.played, ids...)
	p.solver = nil
	waiter := p.waiter
	p.waiter = nil
	p.mu.Unlock()

	zlog.Info().Msgf("playlist request finished: id=%s requested=%d produced=%d success=%v",
		r.SolverID, requested, len(ids), r.Success)

	if waiter != nil {
		waiter <- r
		return
	}
	select {
	case p.results <- r:
	default:
		zlog.Warn().Msgf("result dropped, nobody is reading: id=%s", r.SolverID)
	}
}

// solverJob runs one solver on the job queue.
type solverJob struct {
	solver    *dynamic.Solver
	playlist  *Playlist
	requested int
}

func (j *solverJob) Run(ctx context.Context) {
	if timeout := j.playlist.cfg.RequestTimeout; timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			zlog.Warn().Msgf("solver timed out, aborting: id=%s timeout=%v", j.solver.ID(), timeout)
			j.solver.RequestAbort()
		})
		defer timer.Stop()
	}

	completed := false
	defer func() {
		if !completed {
			zlog.Error().Msgf("solver stopped unexpectedly: id=%s", j.solver.ID())
			j.solver.RequestAbort()
		}
		j.playlist.finish(j.solver, j.requested)
	}()

	j.solver.Run(ctx)
	completed = true
}

func (j *solverJob) RequestAbort() {
	j.solver.RequestAbort()
}
