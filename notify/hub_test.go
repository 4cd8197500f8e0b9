package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	events map[string][]Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(map[string][]Event)}
}

func (r *recordingSink) Deliver(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[ev.Channel] = append(r.events[ev.Channel], ev)
	return nil
}

func (r *recordingSink) For(channel string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[channel]...)
}

func TestChannelKeyRoundTrip(t *testing.T) {
	id := primitive.NewObjectID()
	key := ChannelKey(id)
	assert.Equal(t, "user-"+id.Hex(), key)

	got, ok := UserFromChannel(key)
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = UserFromChannel(BroadcastKey)
	assert.False(t, ok)
	_, ok = UserFromChannel("user-nothex")
	assert.False(t, ok)
}

func TestHub_PerChannelOrder(t *testing.T) {
	sink := newRecordingSink()
	hub := NewHub(zap.NewNop(), WithShards(4), WithQueueSize(1000), WithSinks(sink))
	hub.Start()

	channels := []string{"user-a", "user-b", "user-c"}
	for i := 0; i < 200; i++ {
		for _, ch := range channels {
			hub.Publish(ch, EventPickupRequested, map[string]interface{}{"seq": i})
		}
	}
	hub.Close()

	for _, ch := range channels {
		got := sink.For(ch)
		require.Len(t, got, 200, ch)
		for i, ev := range got {
			assert.Equal(t, i, ev.Payload["seq"], "channel %s out of order", ch)
		}
	}
}

func TestHub_PublishDoesNotBlockOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	slow := SinkFunc(func(ctx context.Context, ev Event) error {
		<-release
		return nil
	})
	hub := NewHub(zap.NewNop(), WithShards(1), WithQueueSize(2), WithSinks(slow))
	hub.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			hub.Publish("user-a", EventNewPost, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow sink")
	}
	assert.Greater(t, hub.Dropped(), int64(0))

	close(release)
	hub.Close()
}

func TestHub_SinkErrorsAndPanicsAreContained(t *testing.T) {
	good := newRecordingSink()
	failing := SinkFunc(func(context.Context, Event) error { return errors.New("offline") })
	panicking := SinkFunc(func(context.Context, Event) error { panic("boom") })

	hub := NewHub(zap.NewNop(), WithShards(2), WithSinks(failing, panicking, good))
	hub.Start()
	for i := 0; i < 5; i++ {
		hub.Publish("user-x", EventPickupVerified, map[string]interface{}{"n": i})
	}
	hub.Close()

	assert.Len(t, good.For("user-x"), 5)
}

func TestHub_PublishAfterCloseIsIgnored(t *testing.T) {
	sink := newRecordingSink()
	hub := NewHub(zap.NewNop(), WithSinks(sink))
	hub.Start()
	hub.Close()

	assert.NotPanics(t, func() {
		hub.Publish("user-a", EventNewPost, nil)
	})
	hub.Close()
	assert.Empty(t, sink.For("user-a"))
}

func TestHub_DeliveryTimeoutReachesSink(t *testing.T) {
	var mu sync.Mutex
	var sawDeadline bool
	sink := SinkFunc(func(ctx context.Context, ev Event) error {
		_, ok := ctx.Deadline()
		mu.Lock()
		sawDeadline = ok
		mu.Unlock()
		return nil
	})
	hub := NewHub(zap.NewNop(), WithDeliveryTimeout(time.Second), WithSinks(sink))
	hub.Start()
	hub.Publish(fmt.Sprintf("user-%d", 1), EventNewPost, nil)
	hub.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, sawDeadline)
}
