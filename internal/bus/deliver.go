package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"

	"codeberg.org/tinyurl/server/internal/logger"
)

const (
	// handler attempts per delivery before the consumer backs off
	maxHandlerAttempts = 3

	handlerRetryInitial = 100 * time.Millisecond
	handlerRetryMax     = 2 * time.Second

	// pause before a given-up message is read again
	redeliveryDelay = 5 * time.Second
)

// wraps the value recovered from a panicking handler
var ErrHandlerPanic = errors.New("bus: handler panic")

type outcome int

const (
	// the handler succeeded
	delivered outcome = iota

	// the message can never be processed (malformed or panicking handler);
	// it is logged and may be committed
	dropped

	// the handler kept failing; the message must not be committed
	gaveUp
)

// runs the subscription handler with bounded retries
func deliver(ctx context.Context, sub Subscription, msg Message) outcome {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = handlerRetryInitial
	b.MaxInterval = handlerRetryMax

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxHandlerAttempts-1), ctx)

	op := func() error {
		err := safeHandle(ctx, sub.Handler, msg)
		if errors.Is(err, ErrMalformed) || errors.Is(err, ErrHandlerPanic) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, policy)
	if err == nil {
		return delivered
	}

	switch {
	case errors.Is(err, ErrMalformed):
		logger.WarnErr(err, "dropping malformed message",
			"group", sub.Group,
			"topic", msg.Topic,
			"offset", msg.Offset,
		)
		return dropped

	case errors.Is(err, ErrHandlerPanic):
		logger.ErrorErr(err, "dropping message after handler panic",
			"group", sub.Group,
			"topic", msg.Topic,
			"key", msg.Key,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return dropped
	}

	logger.ErrorErr(err, "handler failed after retries, message will be redelivered",
		"group", sub.Group,
		"topic", msg.Topic,
		"key", msg.Key,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)

	return gaveUp
}

// calls h, turning a panic into an ErrHandlerPanic error
func safeHandle(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("bus handler panicked",
				"topic", msg.Topic,
				"key", msg.Key,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w on %s: %v", ErrHandlerPanic, msg.Topic, rec)
		}
	}()

	return h(ctx, msg)
}

// waits d or until ctx is done; false when ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// the publish retry policy for transient broker errors
func publishBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 5 * time.Second

	return backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)
}
