package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// returned (possibly wrapped) by handlers for payloads that can never be
// processed. the consumer logs and drops them instead of retrying.
var ErrMalformed = errors.New("bus: malformed message")

// returned by Publish after Close
var ErrClosed = errors.New("bus: closed")

// a record read from or written to the bus
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// unmarshals the JSON value into v, wrapping failures in ErrMalformed
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Value, v); err != nil {
		return fmt.Errorf("%w: topic %s offset %d: %v", ErrMalformed, m.Topic, m.Offset, err)
	}

	return nil
}

// processes one message. returning an error asks the consumer to retry.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	// publishes payload as JSON. messages with the same key land on the same partition.
	Publish(ctx context.Context, topic, key string, payload any) error
}

type Subscriber interface {
	// starts consuming in the background until ctx is done or the bus is closed
	Subscribe(ctx context.Context, sub Subscription) error
}

type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// what and how to consume
type Subscription struct {
	// consumer group; members of one group split the topic's partitions
	Group string

	Topics  []string
	Handler Handler

	// start at the end of the log when the group has no committed offset.
	// reply consumers use this so they never replay old replies.
	FromLatest bool
}

func (s Subscription) validate() error {
	if s.Group == "" {
		return fmt.Errorf("bus: subscription group is required")
	}

	if len(s.Topics) == 0 {
		return fmt.Errorf("bus: subscription needs at least one topic")
	}

	if s.Handler == nil {
		return fmt.Errorf("bus: subscription handler is required")
	}

	return nil
}

// marshals a payload; raw bytes pass through untouched
func Encode(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("bus: encode payload: %w", err)
	}

	return data, nil
}
