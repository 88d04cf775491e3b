package bus

import (
	"context"
	"errors"
	"sort"

	"codeberg.org/tinyurl/server/internal/logger"
)

// dispatches messages to per-topic handlers
type Router struct {
	routes map[string]Handler
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Handler)}
}

// registers h for topic, replacing any previous handler
func (r *Router) Handle(topic string, h Handler) {
	r.routes[topic] = h
}

// registered topics in stable order
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for t := range r.routes {
		topics = append(topics, t)
	}

	sort.Strings(topics)
	return topics
}

// runs the handler for msg.Topic.
// malformed messages and unknown topics are logged and dropped (nil error).
func (r *Router) Dispatch(ctx context.Context, msg Message) error {
	h, ok := r.routes[msg.Topic]
	if !ok {
		logger.Warn("no handler for topic, dropping message",
			"topic", msg.Topic,
			"offset", msg.Offset,
		)
		return nil
	}

	err := h(ctx, msg)
	if errors.Is(err, ErrMalformed) {
		logger.WarnErr(err, "dropping malformed message",
			"topic", msg.Topic,
			"key", msg.Key,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return nil
	}

	return err
}

// the router as a single Handler
func (r *Router) Handler() Handler {
	return r.Dispatch
}
