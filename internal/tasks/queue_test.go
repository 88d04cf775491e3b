package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		Workers:      2,
		QueueSize:    8,
		MaxRetries:   3,
		RatePerSec:   1000,
		DrainTimeout: 2 * time.Second,
	}
}

func TestQueue_RunsTasks(t *testing.T) {
	q := NewQueue(testOptions())
	q.Start()
	defer q.Stop()

	var n int32
	for range 5 {
		require.NoError(t, q.Submit("count", func(context.Context) error {
			atomic.AddInt32(&n, 1)
			return nil
		}))
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) == 5 }, time.Second, 5*time.Millisecond)
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	q := NewQueue(testOptions())
	q.Start()
	defer q.Stop()

	var attempts int32
	require.NoError(t, q.Submit("flaky", func(context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 3 }, 3*time.Second, 10*time.Millisecond)
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	opts := testOptions()
	opts.MaxRetries = 1
	q := NewQueue(opts)
	q.Start()

	var attempts int32
	require.NoError(t, q.Submit("broken", func(context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("permanent")
	}))

	q.Stop()
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestQueue_RejectsWhenFull(t *testing.T) {
	opts := testOptions()
	opts.QueueSize = 1
	q := NewQueue(opts) // not started, nothing drains the queue

	require.NoError(t, q.Submit("a", func(context.Context) error { return nil }))
	assert.ErrorIs(t, q.Submit("b", func(context.Context) error { return nil }), ErrQueueFull)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_StopDrainsAndRejects(t *testing.T) {
	q := NewQueue(testOptions())
	q.Start()

	var n int32
	for range 4 {
		require.NoError(t, q.Submit("drain", func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&n, 1)
			return nil
		}))
	}

	q.Stop()
	assert.Equal(t, int32(4), atomic.LoadInt32(&n))
	assert.ErrorIs(t, q.Submit("late", func(context.Context) error { return nil }), ErrQueueClosed)
}

func TestQueue_PanickingTaskDoesNotKillWorker(t *testing.T) {
	q := NewQueue(testOptions())
	q.Start()
	defer q.Stop()

	require.NoError(t, q.Submit("panics", func(context.Context) error { panic("boom") }))

	var ran int32
	require.NoError(t, q.Submit("after", func(context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&ran) == 1 }, time.Second, 5*time.Millisecond)
}
