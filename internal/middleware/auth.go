package middleware

import (
	"net/http"
	"strings"

	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/chachabrian/fleet-booking/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		// First try to get token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on a websocket upgrade
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			unauthorized(c, "Authorization header or token query parameter required")
			return
		}

		token, err := utils.ValidateToken(tokenString, secret)
		if err != nil || !token.Valid {
			unauthorized(c, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			unauthorized(c, "Invalid token claims")
			return
		}

		actor, err := utils.ActorFromClaims(claims)
		if err != nil {
			unauthorized(c, "Invalid token claims")
			return
		}

		c.Set(actorKey, actor)
		c.Set("userId", actor.ID)
		c.Set("userType", string(actor.Role))
		c.Next()
	}
}

// CurrentActor returns the caller stored by AuthMiddleware.
func CurrentActor(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}

// SetActor is used by tests and internal callers that authenticate elsewhere.
func SetActor(c *gin.Context, actor models.Actor) {
	c.Set(actorKey, actor)
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": message,
		"error":   gin.H{"kind": "Unauthorized", "message": message},
	})
}
