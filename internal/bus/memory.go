package bus

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"codeberg.org/tinyurl/server/internal/logger"
)

const memoryQueueSize = 1024

// in-process bus with consumer-group semantics.
// used by tests and by single-node development (BUS_DRIVER=memory).
type MemoryBus struct {
	mu      sync.RWMutex
	groups  map[string]*memoryGroup // by group name
	offsets map[string]int64        // by topic
	closed  bool
	wg      sync.WaitGroup

	// deliver every message twice, simulating at-least-once redelivery
	Duplicate bool
}

type memoryGroup struct {
	topics  map[string]bool
	members []*memoryMember
}

type memoryMember struct {
	sub   Subscription
	queue chan Message
	done  chan struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		groups:  make(map[string]*memoryGroup),
		offsets: make(map[string]int64),
	}
}

// delivers payload to one member of every group subscribed to topic
func (b *MemoryBus) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := Encode(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	offset := b.offsets[topic]
	b.offsets[topic] = offset + 1

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Headers:   map[string]string{"content-type": "application/json"},
		Partition: partitionFor(key),
		Offset:    offset,
		Timestamp: time.Now(),
	}

	var targets []*memoryMember
	for _, g := range b.groups {
		if !g.topics[topic] || len(g.members) == 0 {
			continue
		}
		targets = append(targets, g.members[int(msg.Partition)%len(g.members)])
	}
	b.mu.Unlock()

	copies := 1
	if b.Duplicate {
		copies = 2
	}

	for _, m := range targets {
		for range copies {
			select {
			case m.queue <- msg:
			case <-m.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}

// joins sub.Group and starts a delivery goroutine for this member
func (b *MemoryBus) Subscribe(ctx context.Context, sub Subscription) error {
	if err := sub.validate(); err != nil {
		return err
	}

	m := &memoryMember{
		sub:   sub,
		queue: make(chan Message, memoryQueueSize),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	g, ok := b.groups[sub.Group]
	if !ok {
		g = &memoryGroup{topics: make(map[string]bool)}
		b.groups[sub.Group] = g
	}

	for _, t := range sub.Topics {
		g.topics[t] = true
	}

	g.members = append(g.members, m)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(ctx, m)

	return nil
}

func (b *MemoryBus) run(ctx context.Context, m *memoryMember) {
	defer b.wg.Done()
	defer b.leave(m)

	for {
		select {
		case msg := <-m.queue:
			// nothing to re-read from, a given-up message is only logged
			deliver(ctx, m.sub, msg)
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

func (b *MemoryBus) leave(m *memoryMember) {
	b.mu.Lock()
	defer b.mu.Unlock()

	g := b.groups[m.sub.Group]
	if g == nil {
		return
	}

	for i, member := range g.members {
		if member == m {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}

	if len(g.members) == 0 {
		delete(b.groups, m.sub.Group)
	}
}

// stops all members and waits for in-flight handlers
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}

	b.closed = true
	for _, g := range b.groups {
		for _, m := range g.members {
			close(m.done)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
	logger.Debug("memory bus closed")

	return nil
}

func partitionFor(key string) int32 {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck,gosec // hash writes never fail
	return int32(h.Sum32() & 0x7fffffff)
}
