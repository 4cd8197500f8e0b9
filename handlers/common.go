package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/lifecycle"
	"secondserve/middleware"
	"secondserve/models"
)

const requestTimeout = 10 * time.Second

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind lifecycle.Kind) int {
	switch kind {
	case lifecycle.KindValidation, lifecycle.KindInvalidCode:
		return http.StatusBadRequest
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindConflict:
		return http.StatusConflict
	case lifecycle.KindForbidden:
		return http.StatusForbidden
	case lifecycle.KindUnauthorized:
		return http.StatusUnauthorized
	case lifecycle.KindTooManyAttempts:
		return http.StatusTooManyRequests
	case lifecycle.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, status int, kind lifecycle.Kind, message string) {
	c.JSON(status, gin.H{
		"success":   false,
		"message":   message,
		"errorKind": kind,
	})
}

// respond writes err as the error envelope. Anything that is not a
// lifecycle error is logged and hidden behind a 500.
func respond(c *gin.Context, logger *zap.Logger, err error) {
	var le *lifecycle.Error
	if !errors.As(err, &le) {
		logger.Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal", "Internal Server Error")
		return
	}
	if le.Kind == lifecycle.KindTransient {
		logger.Warn("store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
	}

	body := gin.H{
		"success":   false,
		"message":   le.Message,
		"errorKind": le.Kind,
	}
	if le.Status != "" {
		body["status"] = le.Status
	}
	c.JSON(StatusFor(le.Kind), body)
}

func caller(c *gin.Context) (lifecycle.Identity, bool) {
	id, err := primitive.ObjectIDFromHex(c.GetString(middleware.ContextUserID))
	if err != nil {
		fail(c, http.StatusUnauthorized, lifecycle.KindUnauthorized, "Invalid user ID")
		return lifecycle.Identity{}, false
	}
	return lifecycle.Identity{UserID: id, UserType: c.GetString(middleware.ContextUserType)}, true
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		fail(c, http.StatusBadRequest, lifecycle.KindValidation, "Invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}

func timeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// postView reveals the verification code and QR only to the donor and the
// assigned collector.
func postView(post *models.FoodPost, viewer primitive.ObjectID) gin.H {
	view := gin.H{"food": post}
	if viewer == post.Donor || (post.AssignedTo != nil && *post.AssignedTo == viewer) {
		view["verificationCode"] = post.VerificationCode
		view["qrCodeUrl"] = post.QRCodeURL
	}
	return view
}

func succeed(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}
