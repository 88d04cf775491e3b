package correlation

import (
	"errors"
	"time"
)

var (
	// no settlement arrived before the exchange deadline
	ErrTimeout = errors.New("correlation: timed out waiting for reply")

	// the registry was closed while the exchange was pending
	ErrClosed = errors.New("correlation: registry closed")

	// no pending exchange with that id (never begun, or already settled)
	ErrUnknown = errors.New("correlation: unknown correlation id")
)

type result[T any] struct {
	value T
	err   error
}

// one in-flight request/reply exchange
type pending[T any] struct {
	id        string
	createdAt time.Time
	deadline  time.Time
	timer     *time.Timer
	done      chan struct{}
	res       result[T]
}
