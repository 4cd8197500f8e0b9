package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"secondserve/database"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

type pushText struct {
	title string
	body  string
}

var pushTexts = map[EventKind]pushText{
	EventPickupRequested: {"New pickup request 🙋", "A collector wants to pick up your food"},
	EventPickupApproved:  {"Request approved! 🤝", "Your pickup was approved. Show the verification code at pickup"},
	EventPickupRejected:  {"Pickup unavailable", "Another collector was approved for this pickup"},
	EventPickupCancelled: {"Pickup cancelled", "The donor has cancelled this food post"},
	EventPickupVerified:  {"Food picked up ✅", "Food has been picked up successfully"},
	EventPickupCompleted: {"Distribution complete 🎉", "Food distribution completed"},
	EventPostExpired:     {"Food post expired", "A food post you were following has expired"},
}

type sendFunc func(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// WebPushSink sends a browser push for per-user events to users with a
// stored subscription. Broadcasts are skipped.
type WebPushSink struct {
	subs       database.SubscriptionStore
	publicKey  string
	privateKey string
	subscriber string
	send       sendFunc
	logger     *zap.Logger
}

var _ Sink = (*WebPushSink)(nil)

func NewWebPushSink(subs database.SubscriptionStore, publicKey, privateKey, subscriber string, logger *zap.Logger) *WebPushSink {
	return &WebPushSink{
		subs:       subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		send:       webpush.SendNotification,
		logger:     logger,
	}
}

func (s *WebPushSink) Deliver(ctx context.Context, ev Event) error {
	text, ok := pushTexts[ev.Kind]
	if !ok {
		return nil
	}
	userID, ok := UserFromChannel(ev.Channel)
	if !ok {
		return nil
	}

	sub, err := s.subs.Find(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"title": text.title,
		"body":  text.body,
		"data": map[string]interface{}{
			"type":      ev.Kind,
			"foodId":    ev.Payload["foodId"],
			"url":       "/dashboard",
			"timestamp": ev.At.Unix(),
		},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	resp, err := s.send(payloadBytes, &sub.Sub, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             30,
	})
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("send push to %s: %w", userID.Hex(), err)
	}

	// 410 means the browser dropped the subscription.
	if resp.StatusCode == http.StatusGone {
		s.logger.Info("push subscription expired, deleting", zap.String("userId", userID.Hex()))
		delCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.subs.Delete(delCtx, userID)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}
