package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/lifecycle"
	"secondserve/models"
)

func TestStatusFor(t *testing.T) {
	cases := map[lifecycle.Kind]int{
		lifecycle.KindValidation:      http.StatusBadRequest,
		lifecycle.KindInvalidCode:     http.StatusBadRequest,
		lifecycle.KindNotFound:        http.StatusNotFound,
		lifecycle.KindConflict:        http.StatusConflict,
		lifecycle.KindForbidden:       http.StatusForbidden,
		lifecycle.KindUnauthorized:    http.StatusUnauthorized,
		lifecycle.KindTooManyAttempts: http.StatusTooManyRequests,
		lifecycle.KindTransient:       http.StatusServiceUnavailable,
		"":                            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), string(kind))
	}
}

func TestRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respond(c, zap.NewNop(), &lifecycle.Error{Kind: lifecycle.KindConflict, Message: "taken", Status: models.StatusAssigned})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"taken","errorKind":"conflict","status":"assigned"}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	respond(c, zap.NewNop(), errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestPostView(t *testing.T) {
	donor, collector, stranger := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	post := &models.FoodPost{Donor: donor, AssignedTo: &collector, VerificationCode: "AB12CD34", QRCodeURL: "data:x"}

	assert.Equal(t, "AB12CD34", postView(post, donor)["verificationCode"])
	assert.Equal(t, "AB12CD34", postView(post, collector)["verificationCode"])
	assert.NotContains(t, postView(post, stranger), "verificationCode")
}
