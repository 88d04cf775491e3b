package analytics

import (
	"context"
	"sync"
	"time"

	"codeberg.org/tinyurl/server/internal/logger"
)

// days a backlog may span before the oldest ones are given up
const maxCatchUpDays = 30

type BatchProcessor interface {
	ProcessBatch(ctx context.Context, date time.Time) (BatchResult, error)
}

// runs the aggregation for the previous UTC day, first at the next UTC
// midnight and then every interval. a day whose run fails stays in the
// backlog and is processed again, together with every later day, on the
// next tick; while a backlog exists ticks come every retryDelay.
type Scheduler struct {
	pipeline   BatchProcessor
	interval   time.Duration
	retryDelay time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup

	// one run at a time per instance
	runMu sync.Mutex

	// oldest day not yet processed successfully, zero when none
	backlogMu sync.Mutex
	backlog   time.Time

	// cancels an in-flight run on Stop
	ctx    context.Context
	cancel context.CancelFunc

	now func() time.Time
}

// creates a scheduler; interval defaults to a day and retryDelay to 15m
func NewScheduler(pipeline BatchProcessor, interval, retryDelay time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	if retryDelay <= 0 {
		retryDelay = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		pipeline:   pipeline,
		interval:   interval,
		retryDelay: retryDelay,
		stopCh:     make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// begins the background schedule
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	logger.Info("aggregation scheduler started",
		"interval", s.interval.String(),
		"retry_delay", s.retryDelay.String(),
		"first_run", s.nextMidnight().Format(time.RFC3339),
	)
}

// stops the schedule and cancels a run in progress
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.cancel()
	s.wg.Wait()
	logger.Info("aggregation scheduler stopped")
}

// processes date right away, waiting for a run already in progress
func (s *Scheduler) RunNow(ctx context.Context, date time.Time) (BatchResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	return s.pipeline.ProcessBatch(ctx, date)
}

// the oldest day still waiting for a successful run, zero when caught up
func (s *Scheduler) Backlog() time.Time {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()
	return s.backlog
}

func (s *Scheduler) setBacklog(date time.Time) {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()
	s.backlog = date
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	next := s.nextMidnight()
	scheduled := true

	timer := time.NewTimer(s.until(next))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.runScheduled()

			if scheduled {
				next = next.Add(s.interval)
			}

			wait := s.until(next)
			scheduled = true

			if !s.Backlog().IsZero() && s.retryDelay < wait {
				wait = s.retryDelay
				scheduled = false
			}

			timer.Reset(wait)
		case <-s.stopCh:
			return
		}
	}
}

// processes every day from the backlog through yesterday. the watermark
// compare-and-set makes replaying a partly processed day safe.
func (s *Scheduler) runScheduled() {
	yesterday := DateOnly(s.now()).AddDate(0, 0, -1)

	from := yesterday
	if b := s.Backlog(); !b.IsZero() && b.Before(yesterday) {
		from = b
	}

	if oldest := yesterday.AddDate(0, 0, -(maxCatchUpDays - 1)); from.Before(oldest) {
		logger.Warn("aggregation backlog too old, skipping days",
			"from", FormatDate(from),
			"resume_at", FormatDate(oldest),
		)
		from = oldest
	}

	if from.Before(yesterday) {
		logger.Info("catching up on aggregation backlog",
			"from", FormatDate(from),
			"to", FormatDate(yesterday),
		)
	}

	var failed time.Time

	for d := from; !d.After(yesterday); d = d.AddDate(0, 0, 1) {
		if s.ctx.Err() != nil {
			if failed.IsZero() {
				failed = d
			}
			break
		}

		if _, err := s.RunNow(s.ctx, d); err != nil {
			logger.ErrorErr(err, "scheduled aggregation failed, day kept for retry", "date", FormatDate(d))
			if failed.IsZero() {
				failed = d
			}
		}
	}

	s.setBacklog(failed)
}

func (s *Scheduler) nextMidnight() time.Time {
	return DateOnly(s.now()).AddDate(0, 0, 1)
}

func (s *Scheduler) until(t time.Time) time.Duration {
	d := t.Sub(s.now())
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func (s *Scheduler) untilNextMidnight() time.Duration {
	return s.until(s.nextMidnight())
}
