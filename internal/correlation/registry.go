package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeberg.org/tinyurl/server/internal/logger"
)

// Registry tracks pending request/reply exchanges keyed by correlation id.
//
// Every exchange settles exactly once: the first of a reply, an error or the
// timeout wins, and the entry is removed at that moment. Anything arriving
// later for the same id is discarded with a warning. The registry performs
// no I/O; publishing and consuming belong to the caller.
type Registry[T any] struct {
	name    string
	mu      sync.Mutex
	entries map[string]*pending[T]
	closed  bool
	now     func() time.Time
}

// creates an empty registry. name only appears in logs.
func NewRegistry[T any](name string) *Registry[T] {
	return &Registry[T]{
		name:    name,
		entries: make(map[string]*pending[T]),
		now:     time.Now,
	}
}

// registers a new exchange and arms its timeout.
// a non-positive timeout never expires on its own, so callers must pass maxWait to Wait.
func (r *Registry[T]) Begin(timeout time.Duration) *Exchange[T] {
	now := r.now()
	p := &pending[T]{
		id:        uuid.NewString(),
		createdAt: now,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		p.res.err = ErrClosed
		close(p.done)
		return &Exchange[T]{reg: r, p: p}
	}

	if timeout > 0 {
		p.deadline = now.Add(timeout)
		id := p.id
		p.timer = time.AfterFunc(timeout, func() {
			var zero T
			r.settle(id, zero, ErrTimeout, true)
		})
	}

	r.entries[p.id] = p

	return &Exchange[T]{reg: r, p: p}
}

// blocks until the exchange with id settles, maxWait passes or ctx is done.
// the id must still be pending; prefer Exchange.Wait, which cannot miss an early reply.
func (r *Registry[T]) Await(ctx context.Context, id string, maxWait time.Duration) (T, error) {
	r.mu.Lock()
	p, ok := r.entries[id]
	r.mu.Unlock()

	if !ok {
		var zero T
		return zero, ErrUnknown
	}

	return (&Exchange[T]{reg: r, p: p}).Wait(ctx, maxWait)
}

// completes the exchange with id. returns false when id is unknown or already
// settled; the late value is dropped.
func (r *Registry[T]) Settle(id string, value T, err error) bool {
	return r.settle(id, value, err, false)
}

func (r *Registry[T]) settle(id string, value T, err error, quiet bool) bool {
	r.mu.Lock()
	p, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		if !quiet {
			logger.Warn("discarding reply for unknown or settled exchange",
				"registry", r.name,
				"correlation_id", id,
			)
		}
		return false
	}

	if p.timer != nil {
		p.timer.Stop()
	}

	p.res = result[T]{value: value, err: err}
	close(p.done)

	if err == ErrTimeout {
		logger.Debug("exchange timed out",
			"registry", r.name,
			"correlation_id", id,
			"age", r.now().Sub(p.createdAt).String(),
		)
	}

	return true
}

// reports whether id is still pending
func (r *Registry[T]) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[id]
	return ok
}

// returns the number of pending exchanges
func (r *Registry[T]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// settles every pending exchange with ErrClosed and rejects new ones
func (r *Registry[T]) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	r.closed = true
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var zero T
	for _, id := range ids {
		r.settle(id, zero, ErrClosed, true)
	}
}
