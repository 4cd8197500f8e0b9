package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"secondserve/discovery"
	"secondserve/lifecycle"
)

type FoodHandler struct {
	engine    *lifecycle.Engine
	discovery *discovery.Service
	logger    *zap.Logger
}

func NewFoodHandler(engine *lifecycle.Engine, disc *discovery.Service, logger *zap.Logger) *FoodHandler {
	return &FoodHandler{engine: engine, discovery: disc, logger: logger}
}

// Create handles POST /api/food/create.
func (h *FoodHandler) Create(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	var in lifecycle.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, lifecycle.KindValidation, "Invalid request body: "+err.Error())
		return
	}

	donor, err := h.engine.AsDonor(id)
	if err != nil {
		respond(c, h.logger, err)
		return
	}

	ctx, cancel := timeout(c)
	defer cancel()
	post, err := donor.Create(ctx, in)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusCreated, "Food post created successfully", postView(post, id.UserID))
}

// Nearby handles GET /api/food/nearby.
func (h *FoodHandler) Nearby(c *gin.Context) {
	if c.Query("longitude") == "" || c.Query("latitude") == "" {
		fail(c, http.StatusBadRequest, lifecycle.KindValidation, "Longitude and latitude are required")
		return
	}
	var q discovery.NearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, lifecycle.KindValidation, "Longitude, latitude and maxDistance must be numbers")
		return
	}

	ctx, cancel := timeout(c)
	defer cancel()
	posts, err := h.discovery.FindNearby(ctx, q)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusOK, "", gin.H{"count": len(posts), "foods": posts})
}

// MyPosts handles GET /api/food/my/posts.
func (h *FoodHandler) MyPosts(c *gin.Context) {
	id, ok := caller(c)
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
	posts, err := donor.Posts(ctx)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusOK, "", gin.H{"count": len(posts), "foods": posts})
}

// Get handles GET /api/food/:id.
func (h *FoodHandler) Get(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := timeout(c)
	defer cancel()
	post, err := h.discovery.Get(ctx, postID)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusOK, "", postView(post, id.UserID))
}

// Cancel handles PUT /api/food/:id/cancel.
func (h *FoodHandler) Cancel(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	postID, ok := objectIDParam(c, "id")
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
	post, err := donor.Cancel(ctx, postID)
	if err != nil {
		respond(c, h.logger, err)
		return
	}
	succeed(c, http.StatusOK, "Food post cancelled", gin.H{"food": post})
}
