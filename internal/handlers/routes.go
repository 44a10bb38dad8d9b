package handlers

import (
	"net/http"

	"github.com/chachabrian/fleet-booking/internal/middleware"
	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/chachabrian/fleet-booking/internal/services"
	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators the API is served from.
type Dependencies struct {
	Manager   *services.BookingManager
	Hub       *services.Hub
	Push      *services.PushNotifier
	JWTSecret string
}

func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	r.GET("/health", func(c *gin.Context) {
		respond(c, http.StatusOK, gin.H{"status": "ok", "websocketClients": deps.Hub.GetConnectedClients()}, "")
	})

	auth := middleware.AuthMiddleware(deps.JWTSecret)
	m := deps.Manager

	api := r.Group("/api")
	{
		// WebSocket connection
		api.GET("/ws", auth, WebSocketHandler(deps.Hub))

		// Protected routes
		protected := api.Group("/")
		protected.Use(auth)
		{
			bookings := protected.Group("/bookings")
			{
				bookings.POST("/check-availability", CheckAvailability(m))
				bookings.POST("", CreateBooking(m))
				bookings.GET("", ListBookings(m))
				bookings.GET("/:id", GetBooking(m))
				bookings.PUT("/:id", UpdateBooking(m))
				bookings.DELETE("/:id", DeleteBooking(m))

				bookings.PUT("/:id/confirm", TransitionTo(m, models.BookingStatusConfirmed))
				bookings.PUT("/:id/start", TransitionTo(m, models.BookingStatusActive))
				bookings.PUT("/:id/complete", TransitionTo(m, models.BookingStatusCompleted))
				bookings.PUT("/:id/cancel", TransitionTo(m, models.BookingStatusCancelled))
				bookings.PATCH("/:id/status", UpdateBookingStatus(m))
				bookings.PUT("/:id/assign-driver", AssignDriver(m))

				bookings.GET("/user/:userId", GetUserBookings(m))
				bookings.GET("/user/:userId/upcoming", GetUpcomingBookings(m))
				bookings.GET("/vehicle/:vehicleId", GetVehicleBookings(m))
				bookings.GET("/vehicle/:vehicleId/active", GetActiveVehicleBookings(m))
				bookings.GET("/status/:status", GetBookingsByStatus(m))
				bookings.GET("/driver/:driverId", GetDriverBookings(m))
			}

			notifications := protected.Group("/notifications")
			{
				notifications.POST("/register-token", RegisterFCMToken(deps.Push))
				notifications.DELETE("/remove-token", RemoveFCMToken(deps.Push))
			}
		}
	}
}
