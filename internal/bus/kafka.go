package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"

	"codeberg.org/tinyurl/server/internal/logger"
)

// connection settings for the Kafka bus
type KafkaConfig struct {
	Brokers  []string
	ClientID string
}

// Bus implementation on franz-go. one producer client is shared by all
// publishers; every subscription gets its own consumer client.
type KafkaBus struct {
	cfg      KafkaConfig
	producer *kgo.Client

	mu        sync.Mutex
	consumers []*kgo.Client
	closed    bool
	wg        sync.WaitGroup
}

// connects the producer and checks the brokers are reachable
func NewKafkaBus(ctx context.Context, cfg KafkaConfig) (*KafkaBus, error) {
	producer, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := producer.Ping(pingCtx); err != nil {
		producer.Close()
		return nil, fmt.Errorf("failed to reach kafka brokers: %w", err)
	}

	logger.Info("connected to kafka", "brokers", cfg.Brokers, "client_id", cfg.ClientID)

	return &KafkaBus{cfg: cfg, producer: producer}, nil
}

// produces synchronously, retrying transient failures with backoff
func (b *KafkaBus) Publish(ctx context.Context, topic, key string, payload any) error {
	value, err := Encode(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return ErrClosed
	}

	op := func() error {
		rec := &kgo.Record{
			Topic:   topic,
			Key:     []byte(key),
			Value:   value,
			Headers: []kgo.RecordHeader{{Key: "content-type", Value: []byte("application/json")}},
		}

		err := b.producer.ProduceSync(ctx, rec).FirstErr()
		if err == nil {
			return nil
		}

		if ctx.Err() != nil || errors.Is(err, kgo.ErrClientClosed) {
			return backoff.Permanent(err)
		}

		logger.WarnErr(err, "kafka produce failed, retrying", "topic", topic, "key", key)
		return err
	}

	if err := backoff.Retry(op, publishBackoff(ctx)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}

// starts a consumer client for sub. offsets are committed only after the
// handler has run, so a crash replays rather than loses messages. a record
// whose handler keeps failing is not committed; its partition is rewound to
// it and read again after a pause.
func (b *KafkaBus) Subscribe(ctx context.Context, sub Subscription) error {
	if err := sub.validate(); err != nil {
		return err
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(b.cfg.Brokers...),
		kgo.ClientID(b.cfg.ClientID),
		kgo.ConsumerGroup(sub.Group),
		kgo.ConsumeTopics(sub.Topics...),
		kgo.DisableAutoCommit(),
	}

	if sub.FromLatest {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer for %v: %w", sub.Topics, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		client.Close()
		return ErrClosed
	}

	b.consumers = append(b.consumers, client)
	b.wg.Add(1)
	b.mu.Unlock()

	go b.consume(ctx, client, sub)

	logger.Info("kafka consumer started", "group", sub.Group, "topics", sub.Topics)

	return nil
}

func (b *KafkaBus) consume(ctx context.Context, client *kgo.Client, sub Subscription) {
	defer b.wg.Done()

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			logger.ErrorErr(err, "kafka fetch error",
				"group", sub.Group,
				"topic", topic,
				"partition", partition,
			)
		})

		var handled []*kgo.Record
		rewind := make(map[string]map[int32]kgo.EpochOffset)

		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			done, at, ok := handlePartition(ctx, sub, p.Records)
			handled = append(handled, done...)

			if ok {
				if rewind[p.Topic] == nil {
					rewind[p.Topic] = make(map[int32]kgo.EpochOffset)
				}
				rewind[p.Topic][p.Partition] = at
			}
		})

		if len(handled) > 0 {
			if err := client.CommitRecords(ctx, handled...); err != nil && ctx.Err() == nil {
				logger.ErrorErr(err, "failed to commit kafka offsets",
					"group", sub.Group,
					"records", len(handled),
				)
			}
		}

		if len(rewind) == 0 {
			continue
		}

		// uncommitted partitions are read again from the failed record
		client.SetOffsets(rewind)

		if !sleepCtx(ctx, redeliveryDelay) {
			return
		}
	}
}

// delivers one partition's records in order. it returns the records that
// may be committed and, when a record was given up on, the offset to resume
// from; records after it are left for redelivery.
func handlePartition(ctx context.Context, sub Subscription, records []*kgo.Record) ([]*kgo.Record, kgo.EpochOffset, bool) {
	var done []*kgo.Record

	for _, rec := range records {
		if deliver(ctx, sub, fromRecord(rec)) == gaveUp {
			return done, kgo.EpochOffset{Epoch: rec.LeaderEpoch, Offset: rec.Offset}, true
		}
		done = append(done, rec)
	}

	return done, kgo.EpochOffset{}, false
}

// closes every consumer, waits for their loops, then flushes and closes the producer
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}

	b.closed = true
	consumers := b.consumers
	b.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}

	b.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.producer.Flush(ctx); err != nil {
		logger.WarnErr(err, "failed to flush kafka producer on close")
	}

	b.producer.Close()
	logger.Info("kafka bus closed")

	return nil
}

func fromRecord(rec *kgo.Record) Message {
	headers := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}

	return Message{
		Topic:     rec.Topic,
		Key:       string(rec.Key),
		Value:     rec.Value,
		Headers:   headers,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Timestamp: rec.Timestamp,
	}
}
