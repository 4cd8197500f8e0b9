package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"secondserve/database"
	"secondserve/models"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newTestPushSink(t *testing.T, status int, sendErr error) (*WebPushSink, *database.MemorySubscriptionStore, *[][]byte) {
	t.Helper()
	subs := database.NewMemorySubscriptionStore()
	sink := NewWebPushSink(subs, "pub", "priv", "mailto:ops@secondserve.org", zap.NewNop())

	var sent [][]byte
	sink.send = func(message []byte, s *webpush.Subscription, o *webpush.Options) (*http.Response, error) {
		sent = append(sent, message)
		if sendErr != nil {
			return nil, sendErr
		}
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return sink, subs, &sent
}

func subscribe(t *testing.T, subs *database.MemorySubscriptionStore, user primitive.ObjectID) {
	t.Helper()
	require.NoError(t, subs.Save(context.Background(), models.PushSubscription{
		UserID: user,
		Sub:    webpush.Subscription{Endpoint: "https://push.example/abc", Keys: webpush.Keys{P256dh: "p", Auth: "a"}},
	}))
}

func TestWebPushSink_SendsToSubscribedUser(t *testing.T) {
	sink, subs, sent := newTestPushSink(t, http.StatusCreated, nil)
	user := primitive.NewObjectID()
	subscribe(t, subs, user)

	err := sink.Deliver(context.Background(), Event{
		Channel: ChannelKey(user),
		Kind:    EventPickupApproved,
		Payload: map[string]interface{}{"foodId": "f1"},
		At:      time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal((*sent)[0], &body))
	assert.Equal(t, "Request approved! 🤝", body["title"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "f1", data["foodId"])
}

func TestWebPushSink_SkipsBroadcastAndUnsubscribed(t *testing.T) {
	sink, _, sent := newTestPushSink(t, http.StatusCreated, nil)

	require.NoError(t, sink.Deliver(context.Background(), Event{Channel: BroadcastKey, Kind: EventNewPost}))
	require.NoError(t, sink.Deliver(context.Background(), Event{Channel: ChannelKey(primitive.NewObjectID()), Kind: EventPickupRequested}))
	assert.Empty(t, *sent)
}

func TestWebPushSink_GoneDeletesSubscription(t *testing.T) {
	sink, subs, _ := newTestPushSink(t, http.StatusGone, nil)
	user := primitive.NewObjectID()
	subscribe(t, subs, user)

	require.NoError(t, sink.Deliver(context.Background(), Event{Channel: ChannelKey(user), Kind: EventPickupVerified}))

	_, err := subs.Find(context.Background(), user)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestWebPushSink_SendErrorIsReturned(t *testing.T) {
	sink, subs, _ := newTestPushSink(t, 0, errors.New("dial tcp: refused"))
	user := primitive.NewObjectID()
	subscribe(t, subs, user)

	err := sink.Deliver(context.Background(), Event{Channel: ChannelKey(user), Kind: EventPickupCompleted})
	assert.Error(t, err)
}
