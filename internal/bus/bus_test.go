package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	N int `json:"n"`
}

// collects decoded messages from a subscription
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestMessage_Decode(t *testing.T) {
	var p ping
	require.NoError(t, Message{Value: []byte(`{"n":7}`)}.Decode(&p))
	assert.Equal(t, 7, p.N)

	err := Message{Topic: "t", Value: []byte(`{not json`)}.Decode(&p)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_RawBytesPassThrough(t *testing.T) {
	raw := []byte(`{"already":"encoded"}`)
	out, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	out, err = Encode(ping{N: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(out))
}

func TestRouter_Dispatch(t *testing.T) {
	r := NewRouter()
	var got int32

	r.Handle("ok", func(context.Context, Message) error {
		atomic.AddInt32(&got, 1)
		return nil
	})
	r.Handle("bad", func(_ context.Context, msg Message) error {
		var p ping
		return msg.Decode(&p)
	})
	r.Handle("fail", func(context.Context, Message) error {
		return errors.New("db down")
	})

	ctx := context.Background()

	assert.NoError(t, r.Dispatch(ctx, Message{Topic: "ok"}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&got))

	assert.NoError(t, r.Dispatch(ctx, Message{Topic: "bad", Value: []byte("<xml/>")}), "malformed messages are dropped")
	assert.NoError(t, r.Dispatch(ctx, Message{Topic: "unknown"}), "unknown topics are dropped")

	assert.EqualError(t, r.Dispatch(ctx, Message{Topic: "fail"}), "db down")
	assert.Equal(t, []string{"bad", "fail", "ok"}, r.Topics())
}

func TestMemoryBus_EveryGroupGetsACopy(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	a, c := &collector{}, &collector{}

	require.NoError(t, b.Subscribe(ctx, Subscription{Group: "a", Topics: []string{"t"}, Handler: a.handle}))
	require.NoError(t, b.Subscribe(ctx, Subscription{Group: "c", Topics: []string{"t"}, Handler: c.handle}))

	for i := range 5 {
		require.NoError(t, b.Publish(ctx, "t", fmt.Sprint(i), ping{N: i}))
	}

	assert.Eventually(t, func() bool { return a.count() == 5 && c.count() == 5 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBus_GroupMembersSplitMessages(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	m1, m2 := &collector{}, &collector{}

	require.NoError(t, b.Subscribe(ctx, Subscription{Group: "g", Topics: []string{"t"}, Handler: m1.handle}))
	require.NoError(t, b.Subscribe(ctx, Subscription{Group: "g", Topics: []string{"t"}, Handler: m2.handle}))

	for i := range 20 {
		require.NoError(t, b.Publish(ctx, "t", fmt.Sprintf("key-%d", i), ping{N: i}))
	}

	assert.Eventually(t, func() bool { return m1.count()+m2.count() == 20 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBus_SameKeyKeepsOrder(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	c := &collector{}
	require.NoError(t, b.Subscribe(ctx, Subscription{Group: "g", Topics: []string{"t"}, Handler: c.handle}))

	for i := range 10 {
		require.NoError(t, b.Publish(ctx, "t", "url-1", ping{N: i}))
	}

	require.Eventually(t, func() bool { return c.count() == 10 }, time.Second, 5*time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, msg := range c.msgs {
		var p ping
		require.NoError(t, msg.Decode(&p))
		assert.Equal(t, i, p.N)
		assert.Equal(t, int64(i), msg.Offset)
	}
}

func TestMemoryBus_Duplicate(t *testing.T) {
	b := NewMemoryBus()
	b.Duplicate = true
	defer b.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	c := &collector{}
	require.NoError(t, b.Subscribe(ctx, Subscription{Group: "g", Topics: []string{"t"}, Handler: c.handle}))
	require.NoError(t, b.Publish(ctx, "t", "k", ping{N: 1}))

	assert.Eventually(t, func() bool { return c.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestMemoryBus_RetriesFailingHandler(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close() //nolint:errcheck // test cleanup

	var calls int32
	handler := func(context.Context, Message) error {
		if atomic.AddInt32(&calls, 1) < 2 {
			return errors.New("transient")
		}
		return nil
	}

	ctx := context.Background()
	require.NoError(t, b.Subscribe(ctx, Subscription{Group: "g", Topics: []string{"t"}, Handler: handler}))
	require.NoError(t, b.Publish(ctx, "t", "k", ping{N: 1}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestMemoryBus_SubscribeValidation(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close() //nolint:errcheck // test cleanup

	ctx := context.Background()
	noop := func(context.Context, Message) error { return nil }

	assert.Error(t, b.Subscribe(ctx, Subscription{Topics: []string{"t"}, Handler: noop}))
	assert.Error(t, b.Subscribe(ctx, Subscription{Group: "g", Handler: noop}))
	assert.Error(t, b.Subscribe(ctx, Subscription{Group: "g", Topics: []string{"t"}}))
}

func TestMemoryBus_PublishAfterClose(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), "t", "k", ping{})
	assert.ErrorIs(t, err, ErrClosed)
}
