package pages

import (
	"slices"
	"sync"
	"time"
)

// DefaultInterval is the coalescing window for change bursts.
const DefaultInterval = 20 * time.Millisecond

// Op is a pending change to one key.
type Op int

const (
	OpAdd Op = iota + 1
	OpUpdate
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	}
	return "none"
}

// merge folds next into a pending op. A zero result drops the key.
//
//	add    + update → add
//	add    + remove → (nothing)
//	update + remove → remove
//	remove + add    → update
func merge(pending, next Op) Op {
	switch {
	case pending == OpAdd && next == OpRemove:
		return 0
	case pending == OpAdd:
		return OpAdd
	case pending == OpRemove && next != OpRemove:
		return OpUpdate
	}
	return next
}

// Pending is one drained key.
type Pending[K comparable] struct {
	Key K
	Op  Op
}

// Coalescer collects changes keyed by K and hands them to a drain function
// at most once per interval. Keys are drained in first-push order.
type Coalescer[K comparable] struct {
	interval time.Duration
	drain    func([]Pending[K])

	mu      sync.Mutex
	pending map[K]Op
	order   []K
	timer   *time.Timer
	closed  bool

	drainMu sync.Mutex // one drain at a time
}

// NewCoalescer returns a coalescer calling drain with each batch. A
// non-positive interval uses DefaultInterval.
func NewCoalescer[K comparable](interval time.Duration, drain func([]Pending[K])) *Coalescer[K] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Coalescer[K]{
		interval: interval,
		drain:    drain,
		pending:  make(map[K]Op),
	}
}

// Push records op for key and schedules a drain if none is scheduled.
func (c *Coalescer[K]) Push(key K, op Op) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	prev, ok := c.pending[key]
	if !ok {
		c.pending[key] = op
		c.order = append(c.order, key)
	} else if merged := merge(prev, op); merged == 0 {
		delete(c.pending, key)
		c.order = slices.DeleteFunc(c.order, func(k K) bool { return k == key })
	} else {
		c.pending[key] = merged
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.interval, c.Flush)
	}
}

// Len is the number of pending keys.
func (c *Coalescer[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush drains pending changes synchronously.
func (c *Coalescer[K]) Flush() {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	batch := make([]Pending[K], 0, len(c.pending))
	for _, key := range c.order {
		if op, ok := c.pending[key]; ok {
			batch = append(batch, Pending[K]{Key: key, Op: op})
		}
	}
	c.pending = make(map[K]Op)
	c.order = nil
	c.mu.Unlock()

	if len(batch) > 0 {
		c.drain(batch)
	}
}

// Close drains what is pending and rejects further pushes.
func (c *Coalescer[K]) Close() {
	c.Flush()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
