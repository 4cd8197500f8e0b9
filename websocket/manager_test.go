package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"secondserve/middleware"
	"secondserve/notify"
)

const secret = "ws-secret"

func startServer(t *testing.T) (*Manager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := NewManager(zap.NewNop(), []string{"*"})
	ctx, cancel := context.WithCancel(context.Background())
	go m.Start(ctx)

	r := gin.New()
	r.GET("/ws", middleware.JWTAuthMiddleware(secret), m.Handler())
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return m, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, user primitive.ObjectID) *websocket.Conn {
	t.Helper()
	token, err := middleware.IssueToken(user.Hex(), "ngo", secret, time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var welcome map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "connected", welcome["type"])
	return conn
}

func TestManager_RejectsMissingToken(t *testing.T) {
	_, url := startServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestManager_DeliversToUserAndBroadcast(t *testing.T) {
	m, url := startServer(t)
	alice, bob := primitive.NewObjectID(), primitive.NewObjectID()
	aliceConn := dial(t, url, alice)
	bobConn := dial(t, url, bob)
	require.Eventually(t, func() bool { return m.ConnectedUsers() == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, m.Deliver(ctx, notify.Event{
		Channel: notify.ChannelKey(alice),
		Kind:    notify.EventPickupApproved,
		Payload: map[string]interface{}{"foodId": "f1"},
	}))
	require.NoError(t, m.Deliver(ctx, notify.Event{
		Channel: notify.BroadcastKey,
		Kind:    notify.EventNewPost,
		Payload: map[string]interface{}{"foodId": "f2"},
	}))

	read := func(conn *websocket.Conn) map[string]interface{} {
		var msg map[string]interface{}
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read(aliceConn)
	assert.Equal(t, string(notify.EventPickupApproved), first["type"])
	assert.Equal(t, "f1", first["payload"].(map[string]interface{})["foodId"])
	assert.Equal(t, string(notify.EventNewPost), read(aliceConn)["type"])

	// Bob never sees Alice's event.
	assert.Equal(t, string(notify.EventNewPost), read(bobConn)["type"])
}

func TestManager_PingPong(t *testing.T) {
	m, url := startServer(t)
	conn := dial(t, url, primitive.NewObjectID())
	require.Eventually(t, func() bool { return m.ConnectedUsers() == 1 }, 2*time.Second, 10*time.Millisecond)

	ping, _ := json.Marshal(map[string]string{"type": "ping"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, ping))

	var msg map[string]interface{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg["type"])
}

func TestManager_UnregistersOnClose(t *testing.T) {
	m, url := startServer(t)
	conn := dial(t, url, primitive.NewObjectID())
	require.Eventually(t, func() bool { return m.ConnectedUsers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return m.ConnectedUsers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_IgnoresUnknownChannel(t *testing.T) {
	m := NewManager(zap.NewNop(), nil)
	assert.NoError(t, m.Deliver(context.Background(), notify.Event{Channel: "room-1", Kind: notify.EventNewPost}))
}
