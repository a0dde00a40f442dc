// Package notification broadcasts solver events to subscribers.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dynbox/internal/app/dynamic"
)

const (
	// DefaultSendTimeout bounds a single send to one subscriber.
	DefaultSendTimeout = 500 * time.Millisecond
	// DefaultQueueSize is the number of observed events held before
	// progress events are coalesced.
	DefaultQueueSize = 256
)

// Errors
var (
	ErrStreamFull   = errors.New("stream buffer is full")
	ErrStreamClosed = errors.New("stream is closed")
)

// Notification is a solver event stamped with a sequence number.
type Notification struct {
	SequenceNo uint64
	Time       time.Time
	Event      dynamic.Event
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	sendTimeout   time.Duration
	now           func() time.Time

	// Observed events waiting for the dispatcher.
	queueMu   sync.Mutex
	queue     []dynamic.Event
	queueSize int
	closed    bool
	wake      chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	m := &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   DefaultSendTimeout,
		now:           time.Now,
		queueSize:     DefaultQueueSize,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go m.dispatch()
	return m
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{id: id, stream: stream}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// nextSequenceNo returns the next sequence number.
func (m *Manager) nextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Observe returns a solver observer. The observer never blocks: events
// are queued and broadcast by the manager's dispatcher. When the queue is
// full, progress events are coalesced into the latest one.
func (m *Manager) Observe() func(dynamic.Event) {
	return m.enqueue
}

func (m *Manager) enqueue(ev dynamic.Event) {
	m.queueMu.Lock()
	if m.closed {
		m.queueMu.Unlock()
		return
	}
	if len(m.queue) >= m.queueSize && ev.Type == dynamic.EventIncrementProgress {
		// Progress values are cumulative, so the newest unit replaces the last one.
		last := &m.queue[len(m.queue)-1]
		if last.Type == dynamic.EventIncrementProgress && last.SolverID == ev.SolverID {
			last.Value = ev.Value
		}
		m.queueMu.Unlock()
		return
	}
	m.queue = append(m.queue, ev)
	m.queueMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// dispatch broadcasts queued events until Close.
func (m *Manager) dispatch() {
	defer close(m.stopped)
	for {
		select {
		case <-m.wake:
			m.drain()
		case <-m.done:
			m.drain()
			return
		}
	}
}

func (m *Manager) drain() {
	for {
		m.queueMu.Lock()
		batch := m.queue
		m.queue = nil
		m.queueMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			m.Broadcast(ev)
		}
	}
}

// Broadcast sends an event to all subscribers in parallel and waits for
// the sends. A send that takes longer than the send timeout is abandoned.
// A full stream misses the event; a subscriber whose send fails otherwise
// is unsubscribed.
func (m *Manager) Broadcast(ev dynamic.Event) {
	n := Notification{SequenceNo: m.nextSequenceNo(), Time: m.now(), Event: ev}

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(n)
			}()

			select {
			case err := <-done:
				if errors.Is(err, ErrStreamFull) {
					zlog.Debug().Msgf("notification dropped, stream full: id=%s sequence=%d", s.id, n.SequenceNo)
				} else if err != nil {
					zlog.Debug().Msgf("dropping subscriber: id=%s error=%v", s.id, err)
					m.Unsubscribe(s.id)
				}
			case <-ctx.Done():
				zlog.Debug().Msgf("notification send timed out: id=%s sequence=%d", s.id, n.SequenceNo)
			}
		}(sub)
	}
	wg.Wait()
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close broadcasts the events still queued, stops the dispatcher and
// removes all subscriptions. Events observed afterwards are dropped.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.queueMu.Lock()
		m.closed = true
		m.queueMu.Unlock()
		close(m.done)
		<-m.stopped
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}

// ChanStream is a buffered in-process stream.
type ChanStream struct {
	mu     sync.Mutex
	ch     chan Notification
	closed bool
}

// NewChanStream creates a stream buffering up to size notifications.
func NewChanStream(size int) *ChanStream {
	return &ChanStream{ch: make(chan Notification, max(size, 1))}
}

// C returns the channel notifications are delivered on.
func (s *ChanStream) C() <-chan Notification {
	return s.ch
}

// Send queues n without blocking.
func (s *ChanStream) Send(n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	select {
	case s.ch <- n:
		return nil
	default:
		return ErrStreamFull
	}
}

// Close closes the channel. Later sends fail.
func (s *ChanStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
