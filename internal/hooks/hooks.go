// Package hooks provides ordered handler lists for named lifecycle and change
// events. Handlers run in registration order. A handler is either sync or
// async, and may be registered to run only once.
package hooks

import (
	"context"
	"fmt"
	"sync"
)

// Kind tags how a handler is invoked.
type Kind int

const (
	Sync Kind = iota
	Async
)

func (k Kind) String() string {
	if k == Async {
		return "async"
	}
	return "sync"
}

type handler[E any] struct {
	id      uint64
	name    string
	kind    Kind
	once    bool
	syncFn  func(E) error
	asyncFn func(context.Context, E) error
}

// Option configures a registration.
type Option func(*options)

type options struct {
	once bool
}

// Once marks the handler as consumed after its first invocation.
func Once() Option {
	return func(o *options) { o.once = true }
}

// List is an ordered set of handlers for one event.
// The zero value is ready to use.
type List[E any] struct {
	Name string

	mu       sync.Mutex
	nextID   uint64
	handlers []*handler[E]
}

// New creates a named list.
func New[E any](name string) *List[E] {
	return &List[E]{Name: name}
}

// Tap registers a sync handler and returns a function that removes it.
func (l *List[E]) Tap(name string, fn func(E) error, opts ...Option) func() {
	return l.add(&handler[E]{name: name, kind: Sync, syncFn: fn}, opts)
}

// TapAsync registers an async handler and returns a function that removes it.
func (l *List[E]) TapAsync(name string, fn func(context.Context, E) error, opts ...Option) func() {
	return l.add(&handler[E]{name: name, kind: Async, asyncFn: fn}, opts)
}

func (l *List[E]) add(h *handler[E], opts []Option) func() {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	h.once = o.once

	l.mu.Lock()
	l.nextID++
	h.id = l.nextID
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()

	return func() { l.remove(h.id) }
}

func (l *List[E]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, h := range l.handlers {
		if h.id == id {
			l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live handlers.
func (l *List[E]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers)
}

// snapshot returns the handlers to invoke and drops consumed once-handlers.
func (l *List[E]) snapshot(allowAsync bool) ([]*handler[E], error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !allowAsync {
		for _, h := range l.handlers {
			if h.kind == Async {
				return nil, fmt.Errorf("hook %s: handler %q is async and cannot be called synchronously", l.Name, h.name)
			}
		}
	}

	out := make([]*handler[E], 0, len(l.handlers))
	kept := l.handlers[:0]
	for _, h := range l.handlers {
		out = append(out, h)
		if !h.once {
			kept = append(kept, h)
		}
	}
	for i := len(kept); i < len(l.handlers); i++ {
		l.handlers[i] = nil
	}
	l.handlers = kept
	return out, nil
}

// Call invokes every handler synchronously. It fails if an async handler is
// registered. The first handler error stops dispatch.
func (l *List[E]) Call(e E) error {
	hs, err := l.snapshot(false)
	if err != nil {
		return err
	}
	for _, h := range hs {
		if err := h.syncFn(e); err != nil {
			return fmt.Errorf("hook %s: %s: %w", l.Name, h.name, err)
		}
	}
	return nil
}

// CallAsync invokes sync and async handlers in registration order, awaiting
// each async handler before moving on.
func (l *List[E]) CallAsync(ctx context.Context, e E) error {
	hs, err := l.snapshot(true)
	if err != nil {
		return err
	}
	for _, h := range hs {
		if err := ctx.Err(); err != nil {
			return err
		}
		var herr error
		if h.kind == Async {
			herr = h.asyncFn(ctx, e)
		} else {
			herr = h.syncFn(e)
		}
		if herr != nil {
			return fmt.Errorf("hook %s: %s: %w", l.Name, h.name, herr)
		}
	}
	return nil
}
