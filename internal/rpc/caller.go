package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/internal/correlation"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
)

// error text carried back in a reply from the remote side
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

// request/reply over the bus. Call publishes a request stamped with a fresh
// correlation id and blocks until the matching reply is passed to Resolve
// by a reply consumer, or the wait expires.
type Caller[T any] struct {
	name string
	reg  *correlation.Registry[T]
	pub  bus.Publisher
}

// creates a caller; name labels logs and the pending gauge
func NewCaller[T any](name string, pub bus.Publisher) *Caller[T] {
	return &Caller[T]{
		name: name,
		reg:  correlation.NewRegistry[T](name),
		pub:  pub,
	}
}

// publishes the payload built for the new correlation id to topic (keyed by
// key) and waits up to maxWait for the reply. a timeout is terminal for this
// call; nothing is retried here.
func (c *Caller[T]) Call(ctx context.Context, topic, key string, build func(correlationID string) any, maxWait time.Duration) (T, error) {
	var zero T

	ex := c.reg.Begin(maxWait)
	start := time.Now()

	if err := c.pub.Publish(ctx, topic, key, build(ex.ID())); err != nil {
		ex.Abort(err)
		metrics.RPCCalls.WithLabelValues(topic, "publish_error").Inc()
		return zero, fmt.Errorf("rpc %s: publish request: %w", c.name, err)
	}

	v, err := ex.Wait(ctx, maxWait)
	metrics.RPCDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.RPCCalls.WithLabelValues(topic, "ok").Inc()
		return v, nil

	case errors.Is(err, correlation.ErrTimeout):
		metrics.RPCCalls.WithLabelValues(topic, "timeout").Inc()
		logger.Warn("request timed out waiting for reply",
			"caller", c.name,
			"topic", topic,
			"key", key,
			"correlation_id", ex.ID(),
			"max_wait", maxWait.String(),
		)
		return zero, err

	default:
		metrics.RPCCalls.WithLabelValues(topic, "error").Inc()
		return zero, err
	}
}

// settles the exchange for correlationID. a false return means the reply was
// late or a duplicate and has been dropped.
func (c *Caller[T]) Resolve(correlationID string, value T, err error) bool {
	if correlationID == "" {
		logger.Warn("reply without correlation id", "caller", c.name)
		return false
	}

	ok := c.reg.Settle(correlationID, value, err)
	if !ok {
		metrics.RPCLateReplies.WithLabelValues(c.name).Inc()
	}

	return ok
}

// number of requests still waiting for a reply
func (c *Caller[T]) Pending() int {
	return c.reg.Pending()
}

// fails every outstanding call with correlation.ErrClosed
func (c *Caller[T]) Close() {
	c.reg.Close()
}
