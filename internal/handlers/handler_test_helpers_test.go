package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/consultportal/portal/internal/database/testutil"
	"github.com/consultportal/portal/internal/middleware"
	"github.com/consultportal/portal/internal/realtime"
	"github.com/consultportal/portal/internal/services"
	"github.com/consultportal/portal/pkg/response"
)

type handlerFixture struct {
	db            *gorm.DB
	hub           *realtime.Hub
	notifications *services.NotificationService
	preferences   *services.PreferenceService
	router        *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	hub := realtime.NewHub()
	t.Cleanup(hub.Close)

	prefs, err := services.NewPreferenceService(db)
	require.NoError(t, err)
	svc, err := services.NewNotificationService(db, hub,
		services.WithPreferences(prefs),
		services.WithEmailDispatcher(services.NewLogDispatcher()),
	)
	require.NoError(t, err)

	notificationHandler, err := NewNotificationHandler(svc, 0)
	require.NoError(t, err)
	preferenceHandler, err := NewPreferenceHandler(prefs)
	require.NoError(t, err)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(middleware.CtxUserIDKey, user)
		}
		c.Next()
	})

	group := router.Group("/api/notifications")
	group.GET("", notificationHandler.List)
	group.GET("/unread-count", notificationHandler.UnreadCount)
	group.GET("/templates", notificationHandler.Templates)
	group.POST("/preview", notificationHandler.Preview)
	group.POST("/read", notificationHandler.MarkManyRead)
	group.POST("/read-all", notificationHandler.MarkAllRead)
	group.POST("/cleanup", notificationHandler.Cleanup)
	group.POST("/enhanced", notificationHandler.CreateEnhanced)
	group.POST("", notificationHandler.Create)
	group.POST("/:id/read", notificationHandler.MarkRead)
	group.POST("/:id/dismiss", notificationHandler.Dismiss)
	group.GET("/preferences", preferenceHandler.Get)
	group.PUT("/preferences", preferenceHandler.Update)
	group.PATCH("/preferences", preferenceHandler.Patch)

	return &handlerFixture{db: db, hub: hub, notifications: svc, preferences: prefs, router: router}
}

func (f *handlerFixture) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch v := body.(type) {
		case string:
			buf.WriteString(v)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(v))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var payload response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return rec, payload
}

func decodeData[T any](t *testing.T, payload response.Response) T {
	t.Helper()
	raw, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

