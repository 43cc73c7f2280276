package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consultportal/portal/internal/notifications"
	"github.com/consultportal/portal/internal/services"
	"github.com/consultportal/portal/pkg/response"
)

// PreferenceHandler exposes the caller's notification delivery settings.
type PreferenceHandler struct {
	service *services.PreferenceService
}

// NewPreferenceHandler constructs a preference handler.
func NewPreferenceHandler(service *services.PreferenceService) (*PreferenceHandler, error) {
	if service == nil {
		return nil, errors.New("preference handler: service is required")
	}
	return &PreferenceHandler{service: service}, nil
}

type preferencesResponse struct {
	Preferences notifications.Preferences `json:"preferences"`
	IsDefault   bool                      `json:"is_default"`
}

// Get returns saved preferences, or the defaults when none exist.
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	prefs, found, err := h.service.Get(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preferencesResponse{Preferences: prefs, IsDefault: !found})
}

// Update replaces the caller's preferences.
func (h *PreferenceHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var payload notifications.Preferences
	if !bindAndValidate(c, &payload) {
		return
	}

	saved, err := h.service.Save(requestContext(c), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preferencesResponse{Preferences: saved})
}

// Patch applies the supplied fields to the caller's preferences.
func (h *PreferenceHandler) Patch(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var payload notifications.PreferencesPatch
	if !bindAndValidate(c, &payload) {
		return
	}

	saved, err := h.service.Patch(requestContext(c), userID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, preferencesResponse{Preferences: saved})
}
