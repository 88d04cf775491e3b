package clicks

import (
	"context"
	"strconv"

	"codeberg.org/tinyurl/server/internal/bus"
)

// publishes click messages keyed by url id
type Publisher struct {
	pub   bus.Publisher
	topic string
}

func NewPublisher(pub bus.Publisher, topic string) *Publisher {
	return &Publisher{pub: pub, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, m Message) error {
	return p.pub.Publish(ctx, p.topic, strconv.FormatInt(m.URLID, 10), m)
}
