package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
)

var (
	ErrQueueFull   = errors.New("tasks: queue full")
	ErrQueueClosed = errors.New("tasks: queue closed")
)

// a unit of background work. returning an error schedules a retry.
type Task func(ctx context.Context) error

type Options struct {
	Workers    int
	QueueSize  int
	MaxRetries uint64

	// upper bound on task executions per second across all workers
	RatePerSec float64

	// how long Stop waits for queued tasks before abandoning them
	DrainTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Workers:      4,
		QueueSize:    1024,
		MaxRetries:   5,
		RatePerSec:   200,
		DrainTimeout: 10 * time.Second,
	}
}

type job struct {
	name     string
	fn       Task
	enqueued time.Time
}

// bounded background work queue with retries
type Queue struct {
	opts    Options
	jobs    chan job
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewQueue(opts Options) *Queue {
	defaults := DefaultOptions()
	if opts.Workers < 1 {
		opts.Workers = defaults.Workers
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaults.RatePerSec
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaults.DrainTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		opts:    opts,
		jobs:    make(chan job, opts.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Workers),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// launches the workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}
	q.started = true

	for i := range q.opts.Workers {
		q.wg.Add(1)
		go q.worker(i)
	}

	logger.Info("task queue started", "workers", q.opts.Workers, "queue_size", q.opts.QueueSize)
}

// enqueues fn without blocking. a full or stopped queue rejects the task.
func (q *Queue) Submit(name string, fn Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.Tasks.WithLabelValues(name, "rejected").Inc()
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job{name: name, fn: fn, enqueued: time.Now()}:
		metrics.TaskQueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		metrics.Tasks.WithLabelValues(name, "rejected").Inc()
		logger.Warn("task queue full, rejecting task", "task", name)
		return ErrQueueFull
	}
}

// stops accepting tasks, drains what is queued (bounded by DrainTimeout) and
// waits for the workers
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(q.opts.DrainTimeout):
		logger.Warn("task queue drain timed out, cancelling remaining tasks", "remaining", len(q.jobs))
		q.cancel()
		<-done
	}

	q.cancel()
	logger.Info("task queue stopped")
}

// number of tasks waiting for a worker
func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for j := range q.jobs {
		metrics.TaskQueueDepth.Set(float64(len(q.jobs)))
		q.run(id, j)
	}
}

func (q *Queue) run(workerID int, j job) {
	if err := q.limiter.Wait(q.ctx); err != nil {
		metrics.Tasks.WithLabelValues(j.name, "failed").Inc()
		logger.WarnErr(err, "task dropped during shutdown", "task", j.name)
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	attempts := 0
	op := func() (err error) {
		attempts++

		defer func() {
			if rec := recover(); rec != nil {
				err = backoff.Permanent(errors.New("task panicked"))
				logger.Error("task panicked", "task", j.name, "panic", rec)
			}
		}()

		return j.fn(q.ctx)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, q.opts.MaxRetries), q.ctx)

	if err := backoff.Retry(op, policy); err != nil {
		metrics.Tasks.WithLabelValues(j.name, "failed").Inc()
		logger.ErrorErr(err, "background task failed",
			"task", j.name,
			"worker", workerID,
			"attempts", attempts,
			"queued_for", time.Since(j.enqueued).String(),
		)
		return
	}

	metrics.Tasks.WithLabelValues(j.name, "ok").Inc()

	if attempts > 1 {
		logger.Debug("background task succeeded after retry", "task", j.name, "attempts", attempts)
	}
}
