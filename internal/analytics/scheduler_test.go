package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu    sync.Mutex
	dates []time.Time

	// remaining failures per day
	failures map[string]int
}

func (p *recordingProcessor) ProcessBatch(_ context.Context, date time.Time) (BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dates = append(p.dates, date)

	if p.failures[FormatDate(date)] > 0 {
		p.failures[FormatDate(date)]--
		return BatchResult{}, errors.New("fetch daily events: timeout")
	}

	return BatchResult{Date: date}, nil
}

func (p *recordingProcessor) processed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.dates))
	for _, d := range p.dates {
		out = append(out, FormatDate(d))
	}
	return out
}

func TestScheduler_RunNow(t *testing.T) {
	proc := &recordingProcessor{}
	s := NewScheduler(proc, time.Hour, time.Minute)

	res, err := s.RunNow(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, day, res.Date)
	assert.Equal(t, []time.Time{day}, proc.dates)
}

func TestScheduler_UntilNextMidnight(t *testing.T) {
	s := NewScheduler(&recordingProcessor{}, 0, 0)
	s.now = func() time.Time { return day.Add(22 * time.Hour) }

	assert.Equal(t, 2*time.Hour, s.untilNextMidnight())
	assert.Equal(t, 24*time.Hour, s.interval)
}

func TestScheduler_ScheduledRunProcessesYesterday(t *testing.T) {
	proc := &recordingProcessor{}
	s := NewScheduler(proc, time.Hour, time.Minute)
	s.now = func() time.Time { return day.Add(30 * time.Second) }

	s.runScheduled()

	require.Len(t, proc.dates, 1)
	assert.Equal(t, day.AddDate(0, 0, -1), proc.dates[0])
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(&recordingProcessor{}, time.Hour, time.Minute)
	s.Start()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_FailedDayIsReprocessed(t *testing.T) {
	proc := &recordingProcessor{failures: map[string]int{"2026-03-13": 1}}
	s := NewScheduler(proc, 24*time.Hour, time.Minute)

	now := day.Add(30 * time.Second)
	s.now = func() time.Time { return now }

	s.runScheduled()
	assert.Equal(t, day.AddDate(0, 0, -1), s.Backlog())

	// a day later the failed day runs again before the new one
	now = now.AddDate(0, 0, 1)
	s.runScheduled()

	assert.Equal(t, []string{"2026-03-13", "2026-03-13", "2026-03-14"}, proc.processed())
	assert.True(t, s.Backlog().IsZero())
}

func TestScheduler_BacklogKeepsOldestFailure(t *testing.T) {
	proc := &recordingProcessor{failures: map[string]int{"2026-03-13": 2, "2026-03-14": 1}}
	s := NewScheduler(proc, 24*time.Hour, time.Minute)

	now := day.Add(time.Minute)
	s.now = func() time.Time { return now }

	s.runScheduled()
	now = now.AddDate(0, 0, 1)
	s.runScheduled()

	assert.Equal(t, []string{"2026-03-13", "2026-03-13", "2026-03-14"}, proc.processed())
	assert.Equal(t, day.AddDate(0, 0, -1), s.Backlog())

	s.runScheduled()
	assert.Equal(t, []string{"2026-03-13", "2026-03-13", "2026-03-14", "2026-03-13", "2026-03-14"}, proc.processed())
	assert.True(t, s.Backlog().IsZero())
}

func TestScheduler_CatchUpIsBounded(t *testing.T) {
	proc := &recordingProcessor{}
	s := NewScheduler(proc, 24*time.Hour, time.Minute)
	s.now = func() time.Time { return day }
	s.setBacklog(day.AddDate(0, 0, -90))

	s.runScheduled()

	dates := proc.processed()
	require.Len(t, dates, maxCatchUpDays)
	assert.Equal(t, FormatDate(day.AddDate(0, 0, -maxCatchUpDays)), dates[0])
	assert.Equal(t, FormatDate(day.AddDate(0, 0, -1)), dates[len(dates)-1])
}

func TestScheduler_RetriesBeforeNextInterval(t *testing.T) {
	yesterday := day.AddDate(0, 0, -2)
	proc := &recordingProcessor{failures: map[string]int{FormatDate(yesterday): 1}}

	s := NewScheduler(proc, time.Hour, 20*time.Millisecond)
	// a millisecond before midnight, so the first tick is immediate
	// and the next regular one is an hour away
	s.now = func() time.Time { return day.Add(-time.Millisecond) }

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return len(proc.processed()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{FormatDate(yesterday), FormatDate(yesterday)}, proc.processed())
	assert.Eventually(t, func() bool { return s.Backlog().IsZero() }, time.Second, 5*time.Millisecond)
}
