package correlation

import (
	"context"
	"time"
)

// handle to a pending exchange returned by Begin
type Exchange[T any] struct {
	reg *Registry[T]
	p   *pending[T]
}

// the correlation id to put on the outgoing request
func (e *Exchange[T]) ID() string {
	return e.p.id
}

// zero when the exchange has no timeout of its own
func (e *Exchange[T]) Deadline() time.Time {
	return e.p.deadline
}

// closed once the exchange settles
func (e *Exchange[T]) Done() <-chan struct{} {
	return e.p.done
}

// blocks the calling goroutine until the exchange settles.
//
// When maxWait elapses first the exchange is settled with ErrTimeout and
// removed from the registry. When ctx ends first the caller gets ctx.Err()
// and the entry is left for its own timer to clean up (or aborted when it
// has no timer).
func (e *Exchange[T]) Wait(ctx context.Context, maxWait time.Duration) (T, error) {
	var expired <-chan time.Time

	if maxWait > 0 {
		t := time.NewTimer(maxWait)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-e.p.done:
		return e.p.res.value, e.p.res.err

	case <-expired:
		var zero T
		e.reg.settle(e.p.id, zero, ErrTimeout, true)

		// a reply may have won the race against our own settle
		<-e.p.done
		return e.p.res.value, e.p.res.err

	case <-ctx.Done():
		// without its own timer nothing else would ever remove the entry
		if e.p.timer == nil {
			e.Abort(ctx.Err())
		}

		var zero T
		return zero, ctx.Err()
	}
}

// settles this exchange with err, used when the request could not be sent
func (e *Exchange[T]) Abort(err error) {
	var zero T
	e.reg.settle(e.p.id, zero, err, true)
}
