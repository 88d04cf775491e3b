package ownership

import (
	"errors"
	"time"
)

var (
	// the ownership authority did not answer in time. callers must treat
	// this as a server-side failure, never as "not owner".
	ErrVerificationUnavailable = errors.New("ownership verification unavailable")

	// the authority answered with an error
	ErrVerificationFailed = errors.New("ownership verification failed")

	// the authority has no owner record for the URL
	ErrURLNotFound = errors.New("url not found")

	// returned by Require when the user does not own the URL
	ErrNotOwner = errors.New("user does not own url")
)

// error text used in replies for URLs without an owner record
const replyErrNotFound = "not_found"

// request published on the ownership requests topic, keyed by url id
type Query struct {
	CorrelationID string    `json:"correlationId"`
	URLID         int64     `json:"urlId"`
	UserID        int64     `json:"userId"`
	Timestamp     time.Time `json:"timestamp"`
}

// answer published on the ownership responses topic
type Reply struct {
	CorrelationID string    `json:"correlationId"`
	URLID         int64     `json:"urlId"`
	UserID        int64     `json:"userId"`
	IsOwner       bool      `json:"isOwner"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type Topics struct {
	Requests  string
	Responses string
}

func DefaultTopics() Topics {
	return Topics{
		Requests:  "ownership.requests",
		Responses: "ownership.responses",
	}
}
