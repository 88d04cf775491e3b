package analytics

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/internal/correlation"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/rpc"
	"codeberg.org/tinyurl/server/tinyurl/clicks"
)

const (
	// events requested per page; a page stays well under the broker's
	// default 1MB message limit
	DefaultPageSize = 2000

	// largest page the responder serves, whatever the request asks for
	maxPageSize = 5000
)

// fetches a day's click events from the analytics source over the bus
type BusSource struct {
	caller   *rpc.Caller[DataPage]
	topics   Topics
	timeout  time.Duration
	pageSize int
	now      func() time.Time
}

func NewBusSource(pub bus.Publisher, topics Topics, timeout time.Duration) *BusSource {
	if timeout <= 0 {
		timeout = DefaultPipelineOptions().FetchTimeout
	}

	return &BusSource{
		caller:   rpc.NewCaller[DataPage]("analytics", pub),
		topics:   topics,
		timeout:  timeout,
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
}

// requests every click event of date, one page at a time, until the source
// reports no more. all pages share one deadline: the earlier of ctx and the
// source timeout.
func (s *BusSource) FetchDailyEvents(ctx context.Context, date time.Time) ([]ClickEvent, error) {
	day := FormatDate(date)
	deadline := time.Now().Add(s.timeout)

	var (
		events  []ClickEvent
		afterID uint64
	)

	for page := 1; ; page++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: daily events for %s after %d pages", correlation.ErrTimeout, day, page-1)
		}

		cursor := afterID
		build := func(correlationID string) any {
			return DataRequest{
				CorrelationID: correlationID,
				RequestType:   RequestDailyClickEvents,
				Date:          day,
				AfterID:       cursor,
				Limit:         s.pageSize,
				Timestamp:     s.now().UTC(),
			}
		}

		p, err := s.caller.Call(ctx, s.topics.Requests, day, build, remaining)
		if err != nil {
			return nil, err
		}

		events = append(events, p.Events...)

		if !p.HasMore || len(p.Events) == 0 {
			return events, nil
		}

		next := p.Events[len(p.Events)-1].ID
		if next <= afterID {
			return nil, fmt.Errorf("analytics source cursor did not advance past %d", afterID)
		}
		afterID = next

		logger.Debug("fetched daily events page", "date", day, "page", page, "events", len(events))
	}
}

// bus handler for the responses topic
func (s *BusSource) HandleResponse(_ context.Context, msg bus.Message) error {
	var r DataResponse
	if err := msg.Decode(&r); err != nil {
		return err
	}

	if r.CorrelationID == "" {
		return fmt.Errorf("%w: analytics response without correlation id", bus.ErrMalformed)
	}

	if r.Error != "" {
		s.caller.Resolve(r.CorrelationID, DataPage{}, &rpc.RemoteError{Message: r.Error})
		return nil
	}

	s.caller.Resolve(r.CorrelationID, DataPage{Events: r.Data, HasMore: r.HasMore}, nil)

	return nil
}

// per-instance subscription for responses to this instance's requests
func (s *BusSource) ReplySubscription(group, instanceID string) bus.Subscription {
	return bus.Subscription{
		Group:      group + "-analytics-replies-" + instanceID,
		Topics:     []string{s.topics.Responses},
		Handler:    s.HandleResponse,
		FromLatest: true,
	}
}

func (s *BusSource) Pending() int {
	return s.caller.Pending()
}

func (s *BusSource) Close() {
	s.caller.Close()
}

// reads stored click events for a day, ids above afterID, in id order
type ClickLister interface {
	ListByDate(ctx context.Context, date time.Time, afterID int64, limit uint64) ([]clicks.Event, error)
}

// serves DataRequests from the click store
type SourceResponder struct {
	clicks ClickLister
	pub    bus.Publisher
	topics Topics
	now    func() time.Time
}

func NewSourceResponder(store ClickLister, pub bus.Publisher, topics Topics) *SourceResponder {
	return &SourceResponder{
		clicks: store,
		pub:    pub,
		topics: topics,
		now:    time.Now,
	}
}

// bus handler for the requests topic. every well-formed request gets a
// response, failures included, so the requester never waits out its timeout
// for an answer that is known.
func (r *SourceResponder) Handle(ctx context.Context, msg bus.Message) error {
	var req DataRequest
	if err := msg.Decode(&req); err != nil {
		return err
	}

	if req.CorrelationID == "" {
		logger.Warn("analytics request without correlation id", "request_type", req.RequestType)
		return nil
	}

	resp := DataResponse{
		CorrelationID: req.CorrelationID,
		RequestType:   req.RequestType,
	}

	switch req.RequestType {
	case RequestDailyClickEvents:
		page, err := r.dailyEvents(ctx, req)
		if err != nil {
			logger.ErrorErr(err, "failed to serve daily click events", "date", req.Date, "after_id", req.AfterID)
			resp.Error = err.Error()
		}
		resp.Data = page.Events
		resp.HasMore = page.HasMore
	default:
		resp.Error = "unsupported request type: " + req.RequestType
	}

	resp.Timestamp = r.now().UTC()

	return r.pub.Publish(ctx, r.topics.Responses, req.Date, resp)
}

func (r *SourceResponder) dailyEvents(ctx context.Context, req DataRequest) (DataPage, error) {
	date, err := ParseDate(req.Date)
	if err != nil {
		return DataPage{}, fmt.Errorf("invalid date %q", req.Date)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	// one extra row tells whether another page follows
	stored, err := r.clicks.ListByDate(ctx, date, int64(req.AfterID), uint64(limit)+1) //nolint:gosec // ids and limits are small positive values
	if err != nil {
		return DataPage{}, fmt.Errorf("click store unavailable")
	}

	page := DataPage{}
	if len(stored) > limit {
		stored = stored[:limit]
		page.HasMore = true
	}

	page.Events = make([]ClickEvent, 0, len(stored))
	for _, e := range stored {
		page.Events = append(page.Events, ClickEvent{
			ID:        uint64(e.ID), //nolint:gosec // BIGSERIAL ids are positive
			URLID:     e.URLID,
			Timestamp: e.ClickedAt,
			Processed: e.Processed,
		})
	}

	return page, nil
}

// shared-group subscription: each request is served once
func (r *SourceResponder) Subscription(group string) bus.Subscription {
	return bus.Subscription{
		Group:   group + "-analytics-source",
		Topics:  []string{r.topics.Requests},
		Handler: r.Handle,
	}
}
