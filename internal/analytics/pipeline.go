package analytics

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
)

type PipelineOptions struct {
	// URLs processed in parallel
	Workers int

	// hard limit on fetching a day's events; hitting it aborts the run
	FetchTimeout time.Duration

	// how often a URL is retried when its watermark moves concurrently
	MaxAttempts int
}

func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Workers:      8,
		FetchTimeout: 30 * time.Second,
		MaxAttempts:  3,
	}
}

// folds a day's click events into per-URL daily counters exactly once.
//
// Each (url, day) row carries a watermark, the highest event id already
// counted. Only events above it are applied, and count and watermark are
// written by one conditional update, so replays and overlapping runs never
// count an event twice.
type Pipeline struct {
	source EventSource
	store  StatStore
	caches CacheInvalidator
	opts   PipelineOptions
	now    func() time.Time
}

func NewPipeline(source EventSource, store StatStore, caches CacheInvalidator, opts PipelineOptions) *Pipeline {
	defaults := DefaultPipelineOptions()
	if opts.Workers < 1 {
		opts.Workers = defaults.Workers
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaults.FetchTimeout
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaults.MaxAttempts
	}

	return &Pipeline{
		source: source,
		store:  store,
		caches: caches,
		opts:   opts,
		now:    time.Now,
	}
}

type urlOutcome int

const (
	outcomeProcessed urlOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// ProcessBatch applies every click event of date to the daily counters.
//
// A fetch failure (including its timeout) aborts the run before anything is
// written; the next run starts again from the stored watermarks. A failure
// on one URL is logged and counted, and the other URLs carry on. Analytics
// caches are invalidated once every URL has been attempted.
func (p *Pipeline) ProcessBatch(ctx context.Context, date time.Time) (BatchResult, error) {
	date = DateOnly(date)
	started := p.now()
	result := BatchResult{Date: date}

	log := logger.With("date", FormatDate(date))
	log.Info("aggregation run started")

	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	events, err := p.source.FetchDailyEvents(fetchCtx, date)
	cancel()

	if err != nil {
		metrics.BatchRuns.WithLabelValues("fetch_error").Inc()
		log.Error("aggregation run aborted, could not fetch events", "error", err)
		return result, fmt.Errorf("fetch click events for %s: %w", FormatDate(date), err)
	}

	groups := groupByURL(events)
	result.Events = len(events)
	result.URLs = len(groups)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	g.SetLimit(p.opts.Workers)

	for urlID, ids := range groups {
		g.Go(func() error {
			outcome, applied, err := p.processURL(ctx, urlID, date, ids)

			mu.Lock()
			defer mu.Unlock()

			switch outcome {
			case outcomeProcessed:
				result.Processed++
				result.Applied += applied
				metrics.BatchURLs.WithLabelValues("processed").Inc()
				metrics.BatchClicksApplied.Add(float64(applied))
			case outcomeSkipped:
				result.Skipped++
				metrics.BatchURLs.WithLabelValues("skipped").Inc()
			case outcomeFailed:
				result.Failed++
				metrics.BatchURLs.WithLabelValues("failed").Inc()
				log.Error("failed to aggregate url", "url_id", urlID, "events", len(ids), "error", err)
			}

			// never cancel the other URLs
			return nil
		})
	}

	_ = g.Wait()

	if p.caches != nil {
		if err := p.caches.InvalidateAll(context.WithoutCancel(ctx)); err != nil {
			log.Error("failed to invalidate analytics caches", "error", err)
		}
	}

	result.Duration = p.now().Sub(started)
	metrics.BatchRuns.WithLabelValues("ok").Inc()
	metrics.BatchDuration.Observe(result.Duration.Seconds())

	log.Info("aggregation run finished",
		"events", result.Events,
		"urls", result.URLs,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"applied", result.Applied,
		"duration", result.Duration.String(),
	)

	return result, nil
}

// applies ids (sorted, distinct) to the (urlID, date) row
func (p *Pipeline) processURL(ctx context.Context, urlID int64, date time.Time, ids []uint64) (outcome urlOutcome, applied uint64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome, applied, err = outcomeFailed, 0, fmt.Errorf("panic: %v", rec)
		}
	}()

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcomeFailed, 0, err
		}

		stat, err := p.store.GetOrCreate(ctx, urlID, date)
		if err != nil {
			return outcomeFailed, 0, err
		}

		fresh := above(ids, stat.LastProcessedClickID)
		if len(fresh) == 0 {
			return outcomeSkipped, 0, nil
		}

		watermark := fresh[len(fresh)-1]
		added := uint64(len(fresh))

		ok, err := p.store.Advance(ctx, stat.ID, stat.LastProcessedClickID, watermark, added, p.now().UTC())
		if err != nil {
			return outcomeFailed, 0, err
		}

		if ok {
			logger.Debug("aggregated url",
				"url_id", urlID,
				"added", added,
				"watermark", watermark,
			)
			return outcomeProcessed, added, nil
		}

		logger.Debug("watermark moved concurrently, reloading",
			"url_id", urlID,
			"expected", stat.LastProcessedClickID,
			"attempt", attempt,
		)
	}

	return outcomeFailed, 0, errWatermarkContention
}

// event ids per URL, sorted ascending with duplicates removed
func groupByURL(events []ClickEvent) map[int64][]uint64 {
	groups := make(map[int64][]uint64)

	for _, e := range events {
		if e.URLID == 0 || e.ID == 0 {
			logger.Warn("skipping click event without url or id", "event_id", e.ID, "url_id", e.URLID)
			continue
		}
		groups[e.URLID] = append(groups[e.URLID], e.ID)
	}

	for urlID, ids := range groups {
		slices.Sort(ids)
		groups[urlID] = slices.Compact(ids)
	}

	return groups
}

// the suffix of sorted ids strictly greater than watermark
func above(ids []uint64, watermark uint64) []uint64 {
	i, found := slices.BinarySearch(ids, watermark)
	if found {
		i++
	}

	return ids[i:]
}
