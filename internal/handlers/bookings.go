package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/chachabrian/fleet-booking/internal/middleware"
	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/chachabrian/fleet-booking/internal/services"
	"github.com/chachabrian/fleet-booking/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type availabilityInput struct {
	VehicleID string `json:"vehicleId" binding:"required"`
	StartDate string `json:"startDate" binding:"required"`
	EndDate   string `json:"endDate" binding:"required"`
}

type createBookingInput struct {
	VehicleID           string `json:"vehicleId" binding:"required"`
	VehicleName         string `json:"vehicleName"`
	VehicleRegistration string `json:"vehicleRegistration"`
	UserID              string `json:"userId"`
	UserName            string `json:"userName"`
	StartDate           string `json:"startDate" binding:"required"`
	EndDate             string `json:"endDate" binding:"required"`
	Purpose             string `json:"purpose"`
	PickupLocation      string `json:"pickupLocation"`
	DropoffLocation     string `json:"dropoffLocation"`
	ContactNumber       string `json:"contactNumber"`
	Notes               string `json:"notes"`
}

type updateBookingInput struct {
	StartDate       *string `json:"startDate"`
	EndDate         *string `json:"endDate"`
	Purpose         *string `json:"purpose"`
	PickupLocation  *string `json:"pickupLocation"`
	DropoffLocation *string `json:"dropoffLocation"`
	ContactNumber   *string `json:"contactNumber"`
	Notes           *string `json:"notes"`
}

type statusInput struct {
	Status string `json:"status" binding:"required"`
}

type assignDriverInput struct {
	DriverID string `json:"driverId" binding:"required"`
	RouteID  string `json:"routeId"`
}

func actorFrom(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "Unauthorized", "Authentication required")
	}
	return actor, ok
}

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, string(services.KindInvalidRequest), message)
}

func parseWindow(c *gin.Context, start, end string) (time.Time, time.Time, bool) {
	s, err := utils.ParseDateTime(start)
	if err != nil {
		badRequest(c, "startDate: "+err.Error())
		return time.Time{}, time.Time{}, false
	}
	e, err := utils.ParseDateTime(end)
	if err != nil {
		badRequest(c, "endDate: "+err.Error())
		return time.Time{}, time.Time{}, false
	}
	return s, e, true
}

// CheckAvailability reports whether a vehicle is free for a window
func CheckAvailability(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}

		var input availabilityInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err.Error())
			return
		}
		start, end, ok := parseWindow(c, input.StartDate, input.EndDate)
		if !ok {
			return
		}

		result, err := manager.CheckAvailability(c.Request.Context(), input.VehicleID, start, end)
		if err != nil {
			respondError(c, err)
			return
		}
		if !actor.IsManager() {
			for i, b := range result.Conflicts {
				result.Conflicts[i] = b.Redacted()
			}
		}
		respond(c, http.StatusOK, result, result.Reason)
	}
}

// CreateBooking reserves a vehicle for the caller
func CreateBooking(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}

		var input createBookingInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err.Error())
			return
		}
		start, end, ok := parseWindow(c, input.StartDate, input.EndDate)
		if !ok {
			return
		}

		booking, err := manager.CreateBooking(c.Request.Context(), actor, models.BookingRequest{
			UserID:              input.UserID,
			UserName:            input.UserName,
			VehicleID:           input.VehicleID,
			VehicleName:         input.VehicleName,
			VehicleRegistration: input.VehicleRegistration,
			StartDate:           start,
			EndDate:             end,
			Purpose:             input.Purpose,
			PickupLocation:      input.PickupLocation,
			DropoffLocation:     input.DropoffLocation,
			ContactNumber:       input.ContactNumber,
			Notes:               input.Notes,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusCreated, booking, "Booking created")
	}
}

// GetBooking returns a single booking
func GetBooking(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		booking, err := manager.GetBooking(c.Request.Context(), c.Param("id"), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, booking, "")
	}
}

// ListBookings lists bookings, optionally filtered by status, user, vehicle or driver
func ListBookings(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.BookingFilter{
			UserID:    c.Query("userId"),
			VehicleID: c.Query("vehicleId"),
			DriverID:  c.Query("driverId"),
		}
		if raw := c.Query("status"); raw != "" {
			for _, label := range strings.Split(raw, ",") {
				status, err := models.ParseStatus(label)
				if err != nil {
					badRequest(c, err.Error())
					return
				}
				filter.Statuses = append(filter.Statuses, status)
			}
		}
		listBookings(c, manager, filter)
	}
}

// GetUserBookings lists the bookings of one user
func GetUserBookings(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		listBookings(c, manager, models.BookingFilter{UserID: c.Param("userId")})
	}
}

// GetVehicleBookings lists the bookings of one vehicle
func GetVehicleBookings(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		listBookings(c, manager, models.BookingFilter{VehicleID: c.Param("vehicleId")})
	}
}

// GetDriverBookings lists the bookings assigned to one driver
func GetDriverBookings(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		listBookings(c, manager, models.BookingFilter{DriverID: c.Param("driverId")})
	}
}

// GetBookingsByStatus lists bookings in one status
func GetBookingsByStatus(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := models.ParseStatus(c.Param("status"))
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		listBookings(c, manager, models.BookingFilter{Statuses: []models.BookingStatus{status}})
	}
}

func listBookings(c *gin.Context, manager *services.BookingManager, filter models.BookingFilter) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	bookings, err := manager.ListBookings(c.Request.Context(), filter, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, bookings)
}

func respondList(c *gin.Context, bookings []models.Booking) {
	if bookings == nil {
		bookings = []models.Booking{}
	}
	respond(c, http.StatusOK, bookings, "")
}

// GetUpcomingBookings lists a user's bookings that have not started yet
func GetUpcomingBookings(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		bookings, err := manager.UpcomingBookings(c.Request.Context(), c.Param("userId"), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		respondList(c, bookings)
	}
}

// GetActiveVehicleBookings lists the live bookings of a vehicle that have not ended
func GetActiveVehicleBookings(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		bookings, err := manager.ActiveBookingsForVehicle(c.Request.Context(), c.Param("vehicleId"), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		respondList(c, bookings)
	}
}

// UpdateBooking edits or reschedules a booking
func UpdateBooking(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}

		var input updateBookingInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err.Error())
			return
		}

		changes := models.BookingChanges{
			Purpose:         input.Purpose,
			PickupLocation:  input.PickupLocation,
			DropoffLocation: input.DropoffLocation,
			ContactNumber:   input.ContactNumber,
			Notes:           input.Notes,
		}
		if input.StartDate != nil {
			t, err := utils.ParseDateTime(*input.StartDate)
			if err != nil {
				badRequest(c, "startDate: "+err.Error())
				return
			}
			changes.StartDate = &t
		}
		if input.EndDate != nil {
			t, err := utils.ParseDateTime(*input.EndDate)
			if err != nil {
				badRequest(c, "endDate: "+err.Error())
				return
			}
			changes.EndDate = &t
		}

		booking, err := manager.UpdateBooking(c.Request.Context(), c.Param("id"), changes, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, booking, "Booking updated")
	}
}

// DeleteBooking removes a booking permanently
func DeleteBooking(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		if err := manager.DeleteBooking(c.Request.Context(), c.Param("id"), actor); err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, nil, "Booking deleted")
	}
}

// TransitionTo moves a booking to a fixed status, for the confirm/start/complete/cancel routes
func TransitionTo(manager *services.BookingManager, target models.BookingStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		transition(c, manager, target)
	}
}

// UpdateBookingStatus moves a booking to the status named in the body
func UpdateBookingStatus(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input statusInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err.Error())
			return
		}
		target, err := models.ParseStatus(input.Status)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		transition(c, manager, target)
	}
}

func transition(c *gin.Context, manager *services.BookingManager, target models.BookingStatus) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	booking, err := manager.Transition(c.Request.Context(), c.Param("id"), target, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, booking, "Booking is now "+string(booking.Status))
}

// AssignDriver assigns a driver and optionally a route to a booking
func AssignDriver(manager *services.BookingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}

		var input assignDriverInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err.Error())
			return
		}

		booking, err := manager.AssignDriver(c.Request.Context(), c.Param("id"), input.DriverID, input.RouteID, actor)
		if err != nil && booking != nil {
			// The booking write committed; only the route link failed.
			log.WithField("bookingId", booking.ID).Errorf("Route assignment failed: %v", err)
			respond(c, http.StatusOK, booking, "Driver assigned, but the route could not be updated")
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		respond(c, http.StatusOK, booking, "Driver assigned")
	}
}
