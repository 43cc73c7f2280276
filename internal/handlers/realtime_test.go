package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	iauth "github.com/consultportal/portal/internal/auth"
	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/realtime"
)

func newRealtimeServer(t *testing.T) (*httptest.Server, *realtime.Hub, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "realtime-test-secret", Issuer: "portal-test", AccessTokenTTL: time.Minute})
	require.NoError(t, err)
	hub := realtime.NewHub()
	t.Cleanup(hub.Close)

	router := gin.New()
	router.GET("/ws", NewRealtimeHandler(hub, jwtSvc, realtime.StreamNotifications).Stream)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, hub, jwtSvc
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
}

func TestRealtimeHandlerRejectsMissingToken(t *testing.T) {
	server, _, _ := newRealtimeServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(server, "?token=garbage"), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRealtimeHandlerRejectsUnknownStream(t *testing.T) {
	server, _, jwtSvc := newRealtimeServer(t)
	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "client-1", Role: iauth.RoleClient})
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "?streams=audit&token="+token), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRealtimeHandlerStreamsNotifications(t *testing.T) {
	server, hub, jwtSvc := newRealtimeServer(t)
	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "client-1", Role: iauth.RoleClient})
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?streams=notifications"), header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(realtime.StreamNotifications, "client-1") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastToUser(realtime.StreamNotifications, "client-1", realtime.NotificationMessage(notifications.Event{
		Name:   notifications.EventCreated,
		UserID: "client-1",
	}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, notifications.EventCreated, msg.Event)
}
