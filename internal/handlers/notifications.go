package handlers

import (
	"net/http"

	"github.com/chachabrian/fleet-booking/internal/services"
	"github.com/gin-gonic/gin"
)

type fcmTokenInput struct {
	FCMToken string `json:"fcmToken"`
}

// RegisterFCMToken registers the caller's device for booking push notifications
func RegisterFCMToken(push *services.PushNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}

		var input fcmTokenInput
		if err := c.ShouldBindJSON(&input); err != nil || input.FCMToken == "" {
			badRequest(c, "fcmToken is required")
			return
		}

		if err := push.RegisterDevice(c.Request.Context(), actor, input.FCMToken); err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"pushEnabled": push.Enabled()}, "FCM token registered")
	}
}

// RemoveFCMToken stops push notifications to the caller's device
func RemoveFCMToken(push *services.PushNotifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}

		var input fcmTokenInput
		// Drivers have a single stored token, so the body is optional for them.
		_ = c.ShouldBindJSON(&input)

		if err := push.UnregisterDevice(c.Request.Context(), actor, input.FCMToken); err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, nil, "FCM token removed")
	}
}
