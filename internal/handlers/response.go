package handlers

import (
	"errors"
	"net/http"

	"github.com/chachabrian/fleet-booking/internal/services"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Response{Success: true, Data: data, Message: message})
}

func fail(c *gin.Context, status int, kind, message string) {
	c.JSON(status, Response{
		Success: false,
		Message: message,
		Error:   &ErrorBody{Kind: kind, Message: message},
	})
}

// respondError maps booking errors onto HTTP statuses. Anything untyped is an
// internal failure and its detail stays in the log.
func respondError(c *gin.Context, err error) {
	var be *services.BookingError
	if !errors.As(err, &be) {
		log.WithFields(log.Fields{"path": c.FullPath(), "method": c.Request.Method}).Errorf("Request failed: %v", err)
		fail(c, http.StatusInternalServerError, "Internal", "Something went wrong, please try again")
		return
	}
	message := be.Reason
	if message == "" {
		message = string(be.Kind)
	}
	fail(c, statusForKind(be.Kind), string(be.Kind), message)
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindInvalidInterval, services.KindPastStartDate, services.KindInvalidRequest:
		return http.StatusBadRequest
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindVehicleNotFound, services.KindBookingNotFound, services.KindDriverNotFound, services.KindRouteNotFound:
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}
