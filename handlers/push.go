package handlers

import (
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/database"
	"secondserve/lifecycle"
	"secondserve/models"
)

type PushHandler struct {
	subs      database.SubscriptionStore
	publicKey string
	logger    *zap.Logger
}

func NewPushHandler(subs database.SubscriptionStore, publicKey string, logger *zap.Logger) *PushHandler {
	return &PushHandler{subs: subs, publicKey: publicKey, logger: logger}
}

// VapidPublicKey handles GET /api/vapid-public-key.
func (h *PushHandler) VapidPublicKey(c *gin.Context) {
	if h.publicKey == "" {
		fail(c, http.StatusServiceUnavailable, lifecycle.KindTransient, "VAPID public key not configured")
		return
	}
	succeed(c, http.StatusOK, "", gin.H{"publicKey": h.publicKey})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// Subscribe handles POST /api/subscribe. One subscription is kept per user;
// a new one replaces the old.
func (h *PushHandler) Subscribe(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, lifecycle.KindValidation, "Invalid subscription: "+err.Error())
		return
	}

	ctx, cancel := timeout(c)
	defer cancel()
	err := h.subs.Save(ctx, models.PushSubscription{
		ID:     primitive.NewObjectID(),
		UserID: id.UserID,
		Sub: webpush.Subscription{
			Endpoint: req.Endpoint,
			Keys:     webpush.Keys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
		},
	})
	if err != nil {
		h.logger.Error("failed to save push subscription", zap.String("userId", id.UserID.Hex()), zap.Error(err))
		fail(c, http.StatusServiceUnavailable, lifecycle.KindTransient, "Failed to save subscription")
		return
	}

	h.logger.Info("push subscription saved", zap.String("userId", id.UserID.Hex()))
	succeed(c, http.StatusOK, "Push subscription saved successfully", nil)
}
