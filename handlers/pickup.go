package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"secondserve/discovery"
	"secondserve/lifecycle"
)

type PickupHandler struct {
	engine    *lifecycle.Engine
	discovery *discovery.Service
	logger    *zap.Logger
}

func NewPickupHandler(engine *lifecycle.Engine, disc *discovery.Service, logger *zap.Logger) *PickupHandler {
	return &PickupHandler{engine: engine, discovery: disc, logger: logger}
}

func (h *PickupHandler) collector(c *gin.Context) (*lifecycle.CollectorOps, bool) {
	id, ok := caller(c)
	if !ok {
		return nil, false
	}
	ops, err := h.engine.AsCollector(id)
	if err != nil {
		respond(c, h.logger, err)
		return nil, false
	}
	return ops, true
}

// Request handles POST /api/pickup/request/:foodId.
func (h *PickupHandler) Request(c *gin.Context) {
	ops, ok := h.collector(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "foodId")
	if !ok {
		return
	}

	ctx, cancel := timeout(c)
	defer cancel()
	post, err := ops.Request(ctx, postID)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusOK, "Pickup request sent successfully", gin.H{"food": post})
}

// Approve handles PUT /api/pickup/approve/:foodId/:requesterId.
func (h *PickupHandler) Approve(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "foodId")
	if !ok {
		return
	}
	requester, ok := objectIDParam(c, "requesterId")
	if !ok {
		return
	}
	donor, err := h.engine.AsDonor(id)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	ctx, cancel := timeout(c)
	defer cancel()
	post, err := donor.Approve(ctx, postID, requester)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusOK, "Pickup request approved", gin.H{"food": post})
}

type verifyRequest struct {
	VerificationCode string `json:"verificationCode" binding:"required"`
}

// Verify handles POST /api/pickup/verify/:foodId.
func (h *PickupHandler) Verify(c *gin.Context) {
	ops, ok := h.collector(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "foodId")
	if !ok {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, lifecycle.KindValidation, "verificationCode is required")
		return
	}

	ctx, cancel := timeout(c)
	defer cancel()
	post, err := ops.Verify(ctx, postID, req.VerificationCode)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusOK, "Pickup verified successfully", gin.H{"food": post})
}

// Complete handles POST /api/pickup/complete/:foodId. The body is optional.
func (h *PickupHandler) Complete(c *gin.Context) {
	ops, ok := h.collector(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "foodId")
	if !ok {
		return
	}
	var in lifecycle.CompleteInput
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			fail(c, http.StatusBadRequest, lifecycle.KindValidation, "Invalid request body: "+err.Error())
			return
		}
	}

	ctx, cancel := timeout(c)
	defer cancel()
	post, err := ops.Complete(ctx, postID, in)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusOK, "Pickup completed. Thank you!", gin.H{"food": post})
}

// MyPickups handles GET /api/pickup/my-pickups. Each pickup carries its
// donor card so the collector knows whom to contact.
func (h *PickupHandler) MyPickups(c *gin.Context) {
	ops, ok := h.collector(c)
	if !ok {
		return
	}

	ctx, cancel := timeout(c)
	defer cancel()
	posts, err := ops.Pickups(ctx)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	pickups := h.discovery.WithDonors(ctx, posts)
	succeed(c, http.StatusOK, "", gin.H{"count": len(pickups), "pickups": pickups})
}
