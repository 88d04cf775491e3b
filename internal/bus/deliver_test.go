package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestDeliver_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		handler   Handler
		want      outcome
		wantCalls int32
	}{
		{
			name:      "success",
			handler:   func(context.Context, Message) error { return nil },
			want:      delivered,
			wantCalls: 1,
		},
		{
			name: "malformed is not retried",
			handler: func(_ context.Context, msg Message) error {
				var p ping
				return msg.Decode(&p)
			},
			want:      dropped,
			wantCalls: 1,
		},
		{
			name:      "panic is recovered and not retried",
			handler:   func(context.Context, Message) error { panic("handler exploded") },
			want:      dropped,
			wantCalls: 1,
		},
		{
			name:      "persistent failure",
			handler:   func(context.Context, Message) error { return errors.New("db down") },
			want:      gaveUp,
			wantCalls: maxHandlerAttempts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			h := func(ctx context.Context, msg Message) error {
				atomic.AddInt32(&calls, 1)
				return tt.handler(ctx, msg)
			}

			sub := Subscription{Group: "g", Topics: []string{"t"}, Handler: h}
			got := deliver(context.Background(), sub, Message{Topic: "t", Value: []byte("<xml/>")})

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestDeliver_RouterPanicIsRecovered(t *testing.T) {
	r := NewRouter()
	r.Handle("boom", func(context.Context, Message) error { panic("handler exploded") })

	sub := Subscription{Group: "g", Topics: r.Topics(), Handler: r.Handler()}

	assert.NotPanics(t, func() {
		assert.Equal(t, dropped, deliver(context.Background(), sub, Message{Topic: "boom"}))
	})
}

func TestHandlePartition_StopsAtGivenUpRecord(t *testing.T) {
	records := []*kgo.Record{
		{Topic: "click.events", Partition: 2, Offset: 10, Value: []byte(`{"n":1}`)},
		{Topic: "click.events", Partition: 2, Offset: 11, Value: []byte(`{"n":2}`), LeaderEpoch: 4},
		{Topic: "click.events", Partition: 2, Offset: 12, Value: []byte(`{"n":3}`)},
	}

	var seen []int64
	h := func(_ context.Context, msg Message) error {
		seen = append(seen, msg.Offset)
		if msg.Offset == 11 {
			return errors.New("postgres unavailable")
		}
		return nil
	}

	sub := Subscription{Group: "g", Topics: []string{"click.events"}, Handler: h}
	done, at, rewind := handlePartition(context.Background(), sub, records)

	require.True(t, rewind)
	assert.Equal(t, kgo.EpochOffset{Epoch: 4, Offset: 11}, at)
	require.Len(t, done, 1)
	assert.Equal(t, int64(10), done[0].Offset)

	// the failing record was retried, the one after it never ran
	assert.Equal(t, []int64{10, 11, 11, 11}, seen)
}

func TestHandlePartition_DroppedRecordsAreCommitted(t *testing.T) {
	records := []*kgo.Record{
		{Topic: "t", Offset: 1, Value: []byte(`not json`)},
		{Topic: "t", Offset: 2, Value: []byte(`{"n":2}`)},
	}

	h := func(_ context.Context, msg Message) error {
		var p ping
		return msg.Decode(&p)
	}

	sub := Subscription{Group: "g", Topics: []string{"t"}, Handler: h}
	done, _, rewind := handlePartition(context.Background(), sub, records)

	assert.False(t, rewind)
	assert.Len(t, done, 2)
}
