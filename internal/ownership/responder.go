package ownership

import (
	"context"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
)

// resolves the owner of a URL from the ownership index
type OwnerLookup interface {
	OwnerOf(ctx context.Context, urlID int64) (userID int64, found bool, err error)
}

// answers ownership queries. a query redelivered by the bus gets no second
// reply as long as its correlation id is still in the dedupe window, also
// when both deliveries are handled at the same time.
type Responder struct {
	owners OwnerLookup
	pub    bus.Publisher
	topics Topics
	seen   *lru.Cache[string, struct{}]
	now    func() time.Time
}

// dedupeSize bounds how many answered correlation ids are remembered
func NewResponder(owners OwnerLookup, pub bus.Publisher, topics Topics, dedupeSize int) (*Responder, error) {
	if dedupeSize <= 0 {
		dedupeSize = 50000
	}

	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, err
	}

	return &Responder{
		owners: owners,
		pub:    pub,
		topics: topics,
		seen:   seen,
		now:    time.Now,
	}, nil
}

// bus handler for the requests topic
func (r *Responder) Handle(ctx context.Context, msg bus.Message) error {
	var q Query
	if err := msg.Decode(&q); err != nil {
		return err
	}

	if q.CorrelationID == "" {
		metrics.OwnershipQueries.WithLabelValues("error").Inc()
		logger.Warn("ownership query without correlation id", "url_id", q.URLID)
		return nil
	}

	// claimed before the lookup; released again if the reply can't be sent
	if seen, _ := r.seen.ContainsOrAdd(q.CorrelationID, struct{}{}); seen {
		metrics.OwnershipQueries.WithLabelValues("duplicate").Inc()
		logger.Debug("ignoring redelivered ownership query", "correlation_id", q.CorrelationID)
		return nil
	}

	reply := Reply{
		CorrelationID: q.CorrelationID,
		URLID:         q.URLID,
		UserID:        q.UserID,
	}

	ownerID, found, err := r.owners.OwnerOf(ctx, q.URLID)
	switch {
	case err != nil:
		logger.ErrorErr(err, "ownership lookup failed", "url_id", q.URLID, "correlation_id", q.CorrelationID)
		reply.Error = "lookup failed"
	case !found:
		reply.Error = replyErrNotFound
	default:
		reply.IsOwner = ownerID == q.UserID
	}

	reply.Timestamp = r.now().UTC()

	if err := r.pub.Publish(ctx, r.topics.Responses, strconv.FormatInt(q.URLID, 10), reply); err != nil {
		r.seen.Remove(q.CorrelationID)
		return err
	}

	metrics.OwnershipQueries.WithLabelValues("answered").Inc()

	return nil
}

// shared-group subscription: each query is answered by one instance
func (r *Responder) Subscription(group string) bus.Subscription {
	return bus.Subscription{
		Group:   group + "-ownership-responder",
		Topics:  []string{r.topics.Requests},
		Handler: r.Handle,
	}
}
