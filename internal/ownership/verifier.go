package ownership

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"codeberg.org/tinyurl/server/internal/bus"
	"codeberg.org/tinyurl/server/internal/correlation"
	"codeberg.org/tinyurl/server/internal/logger"
	"codeberg.org/tinyurl/server/internal/metrics"
	"codeberg.org/tinyurl/server/internal/rpc"
)

type VerifierOptions struct {
	// used by Verify and Require
	Timeout time.Duration

	// lifetime of a cached answer, independent of any other cache
	CacheTTL  time.Duration
	CacheSize int
}

func DefaultVerifierOptions() VerifierOptions {
	return VerifierOptions{
		Timeout:   10 * time.Second,
		CacheTTL:  5 * time.Minute,
		CacheSize: 10000,
	}
}

// asks the ownership authority, over the bus, whether a user owns a URL
type Verifier struct {
	caller *rpc.Caller[bool]
	topics Topics
	opts   VerifierOptions
	cache  *expirable.LRU[string, bool]
	now    func() time.Time
}

func NewVerifier(pub bus.Publisher, topics Topics, opts VerifierOptions) *Verifier {
	defaults := DefaultVerifierOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaults.CacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaults.CacheSize
	}

	return &Verifier{
		caller: rpc.NewCaller[bool]("ownership", pub),
		topics: topics,
		opts:   opts,
		cache:  expirable.NewLRU[string, bool](opts.CacheSize, nil, opts.CacheTTL),
		now:    time.Now,
	}
}

// VerifyOwnership reports whether userID owns urlID.
//
// A cached answer is returned without a round trip. Otherwise a Query is
// published keyed by urlID and the call blocks for at most timeout. A
// timeout yields ErrVerificationUnavailable and is not retried; an
// authority without an owner record yields ErrURLNotFound.
func (v *Verifier) VerifyOwnership(ctx context.Context, urlID, userID int64, timeout time.Duration) (bool, error) {
	key := cacheKey(urlID, userID)

	if owner, ok := v.cache.Get(key); ok {
		metrics.OwnershipCache.WithLabelValues("hit").Inc()
		return owner, nil
	}

	metrics.OwnershipCache.WithLabelValues("miss").Inc()

	build := func(correlationID string) any {
		return Query{
			CorrelationID: correlationID,
			URLID:         urlID,
			UserID:        userID,
			Timestamp:     v.now().UTC(),
		}
	}

	owner, err := v.caller.Call(ctx, v.topics.Requests, strconv.FormatInt(urlID, 10), build, timeout)
	if err != nil {
		if errors.Is(err, correlation.ErrTimeout) {
			return false, fmt.Errorf("%w: url %d user %d: %w", ErrVerificationUnavailable, urlID, userID, err)
		}
		return false, err
	}

	v.cache.Add(key, owner)

	return owner, nil
}

// VerifyOwnership with the configured timeout
func (v *Verifier) Verify(ctx context.Context, urlID, userID int64) (bool, error) {
	return v.VerifyOwnership(ctx, urlID, userID, v.opts.Timeout)
}

// returns nil only when userID owns urlID
func (v *Verifier) Require(ctx context.Context, urlID, userID int64) error {
	owner, err := v.Verify(ctx, urlID, userID)
	if err != nil {
		return err
	}

	if !owner {
		return ErrNotOwner
	}

	return nil
}

// drops one cached answer. reports whether it was present.
func (v *Verifier) Evict(urlID, userID int64) bool {
	return v.cache.Remove(cacheKey(urlID, userID))
}

// drops every cached answer
func (v *Verifier) Purge() {
	v.cache.Purge()
}

// number of cached answers
func (v *Verifier) CacheLen() int {
	return v.cache.Len()
}

// requests still waiting for a reply
func (v *Verifier) Pending() int {
	return v.caller.Pending()
}

// bus handler for the responses topic
func (v *Verifier) HandleReply(_ context.Context, msg bus.Message) error {
	var r Reply
	if err := msg.Decode(&r); err != nil {
		return err
	}

	if r.CorrelationID == "" {
		return fmt.Errorf("%w: ownership reply without correlation id", bus.ErrMalformed)
	}

	switch {
	case r.Error == replyErrNotFound:
		v.caller.Resolve(r.CorrelationID, false, fmt.Errorf("%w: %d", ErrURLNotFound, r.URLID))
	case r.Error != "":
		v.caller.Resolve(r.CorrelationID, false, fmt.Errorf("%w: %w", ErrVerificationFailed, &rpc.RemoteError{Message: r.Error}))
	default:
		v.caller.Resolve(r.CorrelationID, r.IsOwner, nil)
	}

	return nil
}

// subscription for this instance's replies. the group is unique per
// instance so every instance sees the replies to its own requests.
func (v *Verifier) ReplySubscription(group, instanceID string) bus.Subscription {
	return bus.Subscription{
		Group:      group + "-ownership-replies-" + instanceID,
		Topics:     []string{v.topics.Responses},
		Handler:    v.HandleReply,
		FromLatest: true,
	}
}

// fails outstanding verifications
func (v *Verifier) Close() {
	v.caller.Close()
	logger.Debug("ownership verifier closed")
}

func cacheKey(urlID, userID int64) string {
	return strconv.FormatInt(urlID, 10) + "_" + strconv.FormatInt(userID, 10)
}
