package handlers

import (
	"github.com/chachabrian/fleet-booking/internal/services"
	"github.com/gin-gonic/gin"
)

// WebSocketHandler streams booking events to the authenticated caller
func WebSocketHandler(hub *services.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		services.HandleWebSocket(hub, c.Writer, c.Request, actor)
	}
}
