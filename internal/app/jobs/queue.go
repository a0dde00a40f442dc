// Package jobs runs abortable background jobs on a fixed pool of workers.
package jobs

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Errors
var (
	ErrQueueClosed = errors.New("queue is closed")
	ErrQueueFull   = errors.New("queue is full")
)

// Job is a unit of background work.
type Job interface {
	// Run performs the job. It must return soon after ctx is done or
	// RequestAbort is called.
	Run(ctx context.Context)

	// RequestAbort asks a running job to stop. It may be called from any
	// goroutine, before or during Run.
	RequestAbort()
}

// Queue runs jobs on a fixed number of workers in enqueue order.
type Queue struct {
	jobs   chan Job
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	closed  bool
	nextID  uint64
	running map[uint64]Job
}

// NewQueue starts workers goroutines serving a queue holding up to buffer
// pending jobs.
func NewQueue(workers, buffer int) *Queue {
	workers = max(workers, 1)
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	q := &Queue{
		jobs:    make(chan Job, max(buffer, 0)),
		cancel:  cancel,
		group:   group,
		running: make(map[uint64]Job),
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for job := range q.jobs {
				q.run(ctx, job)
			}
			return nil
		})
	}
	zlog.Debug().Msgf("job queue started: workers=%d buffer=%d", workers, buffer)
	return q
}

// Enqueue schedules job. It fails when the queue is closed or full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of jobs waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Running returns the number of jobs being run.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// Close stops accepting jobs, aborts the running ones and waits for the
// workers to finish. Jobs still queued are run with a cancelled context so
// that they can report their end.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, job := range q.running {
		job.RequestAbort()
	}
	close(q.jobs)
	q.mu.Unlock()

	q.cancel()
	_ = q.group.Wait()
	zlog.Debug().Msg("job queue closed")
}

func (q *Queue) run(ctx context.Context, job Job) {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.running[id] = job
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.running, id)
		q.mu.Unlock()

		if r := recover(); r != nil {
			zlog.Error().Msgf("job panicked: %v", r)
		}
	}()

	job.Run(ctx)
}
