package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/database"
	"secondserve/discovery"
	"secondserve/handlers"
	"secondserve/lifecycle"
	"secondserve/middleware"
	"secondserve/models"
	"secondserve/notify"
)

const secret = "routes-secret"

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	users  *database.MemoryUserDirectory
}

func (a apiClient) do(method, path, userID, userType string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := middleware.IssueToken(userID, userType, secret, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func newAPI(t *testing.T, health func(context.Context) error) (apiClient, *database.MemoryPostStore) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := database.NewMemoryPostStore()
	users := database.NewMemoryUserDirectory()

	engine := lifecycle.NewEngine(store, notify.Discard{},
		lifecycle.WithAttemptLimiter(middleware.NewRateLimiter(5, 15*time.Minute)))
	disc := discovery.NewService(store, users, nil)

	router := SetupRouter(Deps{
		Food:      handlers.NewFoodHandler(engine, disc, logger),
		Pickup:    handlers.NewPickupHandler(engine, disc, logger),
		Push:      handlers.NewPushHandler(database.NewMemorySubscriptionStore(), "BPublicKey", logger),
		JWTSecret: secret,
		Logger:    logger,
		Health:    health,
	})
	return apiClient{t: t, router: router, users: users}, store
}

func TestPickupFlowOverHTTP(t *testing.T) {
	api, _ := newAPI(t, nil)
	donorID := primitive.NewObjectID()
	api.users.Put(models.User{ID: donorID, Name: "Asha", Organization: "Asha Kitchens", Phone: "+91-9000000000", Rating: models.Rating{Average: 4.8}})
	donor := donorID.Hex()
	ngo := primitive.NewObjectID().Hex()
	volunteer := primitive.NewObjectID().Hex()

	code, body := api.do(http.MethodPost, "/api/food/create", donor, "donor", map[string]interface{}{
		"title":      "Dal and rice",
		"foodType":   "veg",
		"quantity":   "3 trays",
		"servings":   25,
		"expiryTime": time.Now().Add(3 * time.Hour).Format(time.RFC3339),
		"location":   map[string]interface{}{"coordinates": []float64{77.59, 12.97}, "address": "Church Street"},
	})
	require.Equal(t, http.StatusCreated, code, body)
	food := body["food"].(map[string]interface{})
	foodID := food["id"].(string)
	verification := body["verificationCode"].(string)
	assert.Len(t, verification, 8)
	assert.NotContains(t, food, "verificationCode")

	code, body = api.do(http.MethodGet, "/api/food/nearby?longitude=77.59&latitude=12.97", ngo, "ngo", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(1), body["count"])

	code, body = api.do(http.MethodGet, "/api/food/"+foodID, ngo, "ngo", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, body, "verificationCode", "hidden from non-participants")

	code, _ = api.do(http.MethodPost, "/api/pickup/request/"+foodID, ngo, "ngo", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = api.do(http.MethodPost, "/api/pickup/request/"+foodID, volunteer, "volunteer", nil)
	require.Equal(t, http.StatusOK, code)
	code, body = api.do(http.MethodPost, "/api/pickup/request/"+foodID, ngo, "ngo", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["errorKind"])

	code, _ = api.do(http.MethodPut, "/api/pickup/approve/"+foodID+"/"+ngo, donor, "donor", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = api.do(http.MethodPost, "/api/pickup/verify/"+foodID, volunteer, "volunteer", map[string]string{"verificationCode": verification})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", body["errorKind"])

	code, body = api.do(http.MethodPost, "/api/pickup/verify/"+foodID, ngo, "ngo", map[string]string{"verificationCode": "WRONG123"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_code", body["errorKind"])

	code, _ = api.do(http.MethodPost, "/api/pickup/verify/"+foodID, ngo, "ngo", map[string]string{"verificationCode": verification})
	require.Equal(t, http.StatusOK, code)

	code, body = api.do(http.MethodPost, "/api/pickup/complete/"+foodID, ngo, "ngo", map[string]string{"notes": "Served at the shelter"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, string(models.StatusCompleted), body["food"].(map[string]interface{})["status"])

	code, body = api.do(http.MethodGet, "/api/pickup/my-pickups", ngo, "ngo", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
	pickup := body["pickups"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, foodID, pickup["id"])
	assert.Equal(t, map[string]interface{}{
		"id":           donor,
		"name":         "Asha",
		"organization": "Asha Kitchens",
		"phone":        "+91-9000000000",
		"rating":       4.8,
	}, pickup["donorInfo"])

	code, body = api.do(http.MethodGet, "/api/food/my/posts", donor, "donor", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])
}

func TestRoleGates(t *testing.T) {
	api, _ := newAPI(t, nil)
	id := primitive.NewObjectID().Hex()

	code, body := api.do(http.MethodPost, "/api/food/create", id, "ngo", map[string]string{})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["errorKind"])

	code, _ = api.do(http.MethodPost, "/api/pickup/request/"+primitive.NewObjectID().Hex(), id, "donor", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = api.do(http.MethodGet, "/api/food/nearby?longitude=0&latitude=0", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRequestErrors(t *testing.T) {
	api, _ := newAPI(t, nil)
	donor := primitive.NewObjectID().Hex()

	code, body := api.do(http.MethodGet, "/api/food/not-an-id", donor, "donor", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", body["errorKind"])

	code, body = api.do(http.MethodGet, "/api/food/"+primitive.NewObjectID().Hex(), donor, "donor", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["errorKind"])

	code, _ = api.do(http.MethodGet, "/api/food/nearby?latitude=1", donor, "donor", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = api.do(http.MethodPost, "/api/food/create", donor, "donor", map[string]interface{}{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", body["errorKind"])

	code, _ = api.do(http.MethodPut, "/api/food/"+primitive.NewObjectID().Hex()+"/cancel", donor, "donor", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = api.do(http.MethodGet, "/api/nothing-here", donor, "donor", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
}

func TestTransientStoreFailure(t *testing.T) {
	api, store := newAPI(t, nil)
	store.Fail = errors.New("replica set unavailable")

	code, body := api.do(http.MethodGet, "/api/pickup/my-pickups", primitive.NewObjectID().Hex(), "volunteer", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "transient", body["errorKind"])
}

func TestPushEndpoints(t *testing.T) {
	api, _ := newAPI(t, nil)

	code, body := api.do(http.MethodGet, "/api/vapid-public-key", "", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "BPublicKey", body["publicKey"])

	user := primitive.NewObjectID().Hex()
	code, _ = api.do(http.MethodPost, "/api/subscribe", user, "ngo", map[string]interface{}{
		"endpoint": "https://push.example.com/abc",
		"keys":     map[string]string{"p256dh": "key", "auth": "secret"},
	})
	assert.Equal(t, http.StatusOK, code)

	code, _ = api.do(http.MethodPost, "/api/subscribe", user, "ngo", map[string]interface{}{"endpoint": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	api, _ := newAPI(t, nil)
	code, body := api.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	api, _ = newAPI(t, func(context.Context) error { return errors.New("no primary") })
	code, body = api.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}
