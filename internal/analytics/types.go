package analytics

import (
	"context"
	"errors"
	"time"

	"codeberg.org/tinyurl/server/tinyurl/stats"
)

// request type for "every click event of one day"
const RequestDailyClickEvents = "DAILY_CLICK_EVENTS"

// date format used on the wire
const dateLayout = "2006-01-02"

// the stored watermark kept moving under us for every attempt
var errWatermarkContention = errors.New("analytics: watermark changed on every attempt")

// click event as served by the analytics source. IDs increase monotonically
// per source; Processed is owned by the source and only informational here.
type ClickEvent struct {
	ID        uint64    `json:"id"`
	URLID     int64     `json:"urlId"`
	Timestamp time.Time `json:"timestamp"`
	Processed bool      `json:"processed"`
}

// a request for one page of a day's events: ids above AfterID, at most Limit
type DataRequest struct {
	CorrelationID string    `json:"correlationId"`
	RequestType   string    `json:"requestType"`
	Date          string    `json:"date"`
	AfterID       uint64    `json:"afterId,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type DataResponse struct {
	CorrelationID string       `json:"correlationId"`
	RequestType   string       `json:"requestType"`
	Data          []ClickEvent `json:"data"`
	HasMore       bool         `json:"hasMore,omitempty"`
	Error         string       `json:"error,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// one page of a day's events
type DataPage struct {
	Events  []ClickEvent
	HasMore bool
}

type Topics struct {
	Requests  string
	Responses string
}

func DefaultTopics() Topics {
	return Topics{
		Requests:  "analytics.data.requests",
		Responses: "analytics.data.responses",
	}
}

// where a batch run gets its input from
type EventSource interface {
	FetchDailyEvents(ctx context.Context, date time.Time) ([]ClickEvent, error)
}

// durable per (url, day) counters
type StatStore interface {
	GetOrCreate(ctx context.Context, urlID int64, date time.Time) (*stats.DailyStat, error)
	Advance(ctx context.Context, statID int64, expected, watermark, added uint64, at time.Time) (bool, error)
}

// caches that must be dropped after counters change
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// outcome of one ProcessBatch run
type BatchResult struct {
	Date      time.Time     `json:"date"`
	Events    int           `json:"events"`
	URLs      int           `json:"urls"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Applied   uint64        `json:"applied"`
	Duration  time.Duration `json:"duration"`
}

// truncates t to its UTC calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parses a YYYY-MM-DD date
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
