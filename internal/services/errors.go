package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidInterval     ErrorKind = "InvalidInterval"
	KindPastStartDate       ErrorKind = "PastStartDate"
	KindVehicleNotFound     ErrorKind = "VehicleNotFound"
	KindVehicleUnavailable  ErrorKind = "VehicleUnavailable"
	KindBookingNotFound     ErrorKind = "BookingNotFound"
	KindInvalidTransition   ErrorKind = "InvalidTransition"
	KindInvalidBookingState ErrorKind = "InvalidBookingState"
	KindConcurrencyConflict ErrorKind = "ConcurrencyConflict"
	KindDriverNotFound      ErrorKind = "DriverNotFound"
	KindRouteNotFound       ErrorKind = "RouteNotFound"
	KindForbidden           ErrorKind = "Forbidden"
	KindInvalidRequest      ErrorKind = "InvalidRequest"
)

// BookingError is a typed failure of a booking operation. errors.Is matches on Kind,
// so callers can compare against the Err* sentinels.
type BookingError struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *BookingError) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

func (e *BookingError) Is(target error) bool {
	var t *BookingError
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

var (
	ErrInvalidInterval     = &BookingError{Kind: KindInvalidInterval}
	ErrPastStartDate       = &BookingError{Kind: KindPastStartDate}
	ErrVehicleNotFound     = &BookingError{Kind: KindVehicleNotFound}
	ErrVehicleUnavailable  = &BookingError{Kind: KindVehicleUnavailable}
	ErrBookingNotFound     = &BookingError{Kind: KindBookingNotFound}
	ErrInvalidTransition   = &BookingError{Kind: KindInvalidTransition}
	ErrInvalidBookingState = &BookingError{Kind: KindInvalidBookingState}
	ErrConcurrencyConflict = &BookingError{Kind: KindConcurrencyConflict}
	ErrDriverNotFound      = &BookingError{Kind: KindDriverNotFound}
	ErrRouteNotFound       = &BookingError{Kind: KindRouteNotFound}
	ErrForbidden           = &BookingError{Kind: KindForbidden}
	ErrInvalidRequest      = &BookingError{Kind: KindInvalidRequest}
)

func newError(kind ErrorKind, format string, args ...interface{}) *BookingError {
	return &BookingError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a booking error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
