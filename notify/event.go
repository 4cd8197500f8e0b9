package notify

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventKind string

const (
	EventNewPost         EventKind = "new-post"
	EventPickupRequested EventKind = "pickup-requested"
	EventPickupApproved  EventKind = "pickup-approved"
	EventPickupRejected  EventKind = "pickup-rejected"
	EventPickupCancelled EventKind = "pickup-cancelled"
	EventPickupVerified  EventKind = "pickup-verified"
	EventPickupCompleted EventKind = "pickup-completed"
	EventPostExpired     EventKind = "post-expired"
)

// BroadcastKey addresses every connected discovery subscriber.
const BroadcastKey = "*"

const channelPrefix = "user-"

// ChannelKey is the stable per-user channel identifier.
func ChannelKey(userID primitive.ObjectID) string {
	return channelPrefix + userID.Hex()
}

// UserFromChannel reverses ChannelKey.
func UserFromChannel(key string) (primitive.ObjectID, bool) {
	if !strings.HasPrefix(key, channelPrefix) {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(strings.TrimPrefix(key, channelPrefix))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

type Event struct {
	Channel string                 `json:"-"`
	Kind    EventKind              `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	At      time.Time              `json:"at"`
}

// Publisher is the fire-and-forget side used by the lifecycle engine.
type Publisher interface {
	Publish(channel string, kind EventKind, payload map[string]interface{})
}

// Sink delivers one event to a transport.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Deliver(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(string, EventKind, map[string]interface{}) {}
