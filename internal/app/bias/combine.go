package bias

import (
	"sync"

	"github.com/osa030/dynbox/internal/app/dynamic"
)

// combiner merges the results of child biases into one set.
// Children may answer synchronously or later through their Ready callback;
// the combined result is returned directly when every child answered
// before seal, and delivered through ready otherwise.
type combiner struct {
	mu      sync.Mutex
	result  dynamic.TrackSet
	merge   func(result *dynamic.TrackSet, part dynamic.TrackSet)
	decided func(result dynamic.TrackSet) bool
	ready   func(dynamic.TrackSet)
	pending int
	sealed  bool
	done    bool
}

func newCombiner(initial dynamic.TrackSet, merge func(*dynamic.TrackSet, dynamic.TrackSet),
	decided func(dynamic.TrackSet) bool, ready func(dynamic.TrackSet)) *combiner {
	return &combiner{result: initial, merge: merge, decided: decided, ready: ready}
}

// ask queries one child and merges its answer.
func (c *combiner) ask(query func(ready func(dynamic.TrackSet)) dynamic.TrackSet) {
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()

	var once sync.Once
	deliver := func(ts dynamic.TrackSet) {
		once.Do(func() { c.deliver(ts) })
	}

	if ts := query(deliver); !ts.IsOutstanding() {
		deliver(ts)
	}
}

// isDecided reports whether further children cannot change the result.
func (c *combiner) isDecided() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decided(c.result)
}

func (c *combiner) deliver(ts dynamic.TrackSet) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.merge(&c.result, ts)
	c.pending--
	if !c.sealed || (c.pending > 0 && !c.decided(c.result)) {
		c.mu.Unlock()
		return
	}
	c.done = true
	result := c.result
	c.mu.Unlock()

	if c.ready != nil {
		c.ready(result)
	}
}

// seal ends the query phase. It returns the combined set when it is
// already known, or an outstanding set when ready will be called later.
func (c *combiner) seal() dynamic.TrackSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	if c.pending == 0 || c.decided(c.result) {
		c.done = true
		return c.result
	}
	return dynamic.Outstanding()
}
