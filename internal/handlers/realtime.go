package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/consultportal/portal/internal/auth"
	"github.com/consultportal/portal/internal/middleware"
	"github.com/consultportal/portal/internal/realtime"
	"github.com/consultportal/portal/pkg/errors"
	"github.com/consultportal/portal/pkg/response"
)

// RealtimeHandler upgrades authenticated requests into live notification feeds.
type RealtimeHandler struct {
	hub     *realtime.Hub
	jwt     *iauth.JWTService
	streams map[string]struct{}
}

// NewRealtimeHandler restricts subscriptions to the given streams. With no
// streams every name is accepted.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, streams ...string) *RealtimeHandler {
	allowed := make(map[string]struct{}, len(streams))
	for _, stream := range realtime.ParseStreams(streams...) {
		allowed[stream] = struct{}{}
	}
	return &RealtimeHandler{hub: hub, jwt: jwt, streams: allowed}
}

// Stream authenticates the caller before the upgrade because browsers cannot
// attach headers to websocket handshakes; the token may ride in the query.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.jwt == nil || h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	userID, ok := h.authenticate(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	requested := realtime.ParseStreams(append(c.QueryArray("stream"), c.Query("streams"))...)
	if !h.permits(requested) {
		response.Error(c, errors.ErrNotFound)
		return
	}

	h.hub.Serve(userID, requested, c.Writer, c.Request)
}

func (h *RealtimeHandler) authenticate(c *gin.Context) (string, bool) {
	token := middleware.AccessToken(c)
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		return "", false
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		return "", false
	}
	userID := strings.TrimSpace(claims.UserID)
	return userID, userID != ""
}

func (h *RealtimeHandler) permits(requested []string) bool {
	if len(h.streams) == 0 {
		return true
	}
	for _, stream := range requested {
		if _, ok := h.streams[stream]; !ok {
			return false
		}
	}
	return true
}
