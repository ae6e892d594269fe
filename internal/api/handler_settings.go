package api

import (
	"net/http"
	"net/mail"

	"github.com/gin-gonic/gin"
)

type settingsResponse struct {
	PushEnabled bool   `json:"push_enabled"`
	AlertEmail  string `json:"alert_email,omitempty"`
}

// GetSettings returns the user's notification preferences.
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.store.GetSettings(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settingsResponse{PushEnabled: settings.PushEnabled, AlertEmail: settings.AlertEmail})
}

type putSettingsRequest struct {
	PushEnabled *bool   `json:"push_enabled"`
	AlertEmail  *string `json:"alert_email"`
}

// PutSettings updates the fields present in the body and keeps the rest.
// An empty alert_email turns the e-mail alert off.
func (h *Handler) PutSettings(c *gin.Context) {
	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.AlertEmail != nil && *req.AlertEmail != "" {
		if _, err := mail.ParseAddress(*req.AlertEmail); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "alert_email is not a valid address"})
			return
		}
	}

	ctx := c.Request.Context()
	settings, err := h.store.GetSettings(ctx, c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req.PushEnabled != nil {
		settings.PushEnabled = *req.PushEnabled
	}
	if req.AlertEmail != nil {
		settings.AlertEmail = *req.AlertEmail
	}

	if err := h.store.SaveSettings(ctx, settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settingsResponse{PushEnabled: settings.PushEnabled, AlertEmail: settings.AlertEmail})
}
