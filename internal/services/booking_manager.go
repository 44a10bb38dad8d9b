package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chachabrian/fleet-booking/internal/database"
	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// A lost write race is retried once before it is reported.
const maxWriteAttempts = 2

// BookingStore is the persistence contract. InsertBooking and UpdateBooking
// must run the overlap check and the write as one atomic step and report
// *database.OverlapError or database.ErrConcurrencyConflict.
type BookingStore interface {
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	FindLiveBookingsByVehicle(ctx context.Context, vehicleID string) ([]models.Booking, error)
	Find(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBooking(ctx context.Context, booking *models.Booking, expectedVersion int64) error
	DeleteBooking(ctx context.Context, id string) error
}

type VehicleDirectory interface {
	VehicleExists(ctx context.Context, vehicleID string) (bool, error)
	VehicleStatus(ctx context.Context, vehicleID string) (models.VehicleStatus, error)
}

type DriverDirectory interface {
	FindDriver(ctx context.Context, driverID string) (*models.Driver, error)
}

type RouteAssigner interface {
	RouteExists(ctx context.Context, routeID string) (bool, error)
	AssignRoute(ctx context.Context, routeID, driverID string) error
}

// BookingManager reserves vehicles without double-booking and drives bookings
// through pending, confirmed, active and completed or cancelled. It keeps no
// booking state between calls.
type BookingManager struct {
	store    BookingStore
	vehicles VehicleDirectory
	drivers  DriverDirectory
	routes   RouteAssigner
	events   EventPublisher
	now      func() time.Time
	logger   *log.Entry
}

type Option func(*BookingManager)

func WithClock(now func() time.Time) Option {
	return func(m *BookingManager) { m.now = now }
}

func WithPublisher(p EventPublisher) Option {
	return func(m *BookingManager) { m.events = p }
}

func WithLogger(l *log.Entry) Option {
	return func(m *BookingManager) { m.logger = l }
}

func NewBookingManager(store BookingStore, vehicles VehicleDirectory, drivers DriverDirectory, routes RouteAssigner, opts ...Option) *BookingManager {
	m := &BookingManager{
		store:    store,
		vehicles: vehicles,
		drivers:  drivers,
		routes:   routes,
		events:   noopPublisher{},
		now:      time.Now,
		logger:   log.WithField("component", "booking_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckAvailability reports whether the vehicle is free over [start, end).
func (m *BookingManager) CheckAvailability(ctx context.Context, vehicleID string, start, end time.Time) (*models.Availability, error) {
	if err := m.validateWindow(start, end); err != nil {
		trackError("check_availability", err)
		return nil, err
	}
	status, err := m.lookupVehicle(ctx, vehicleID)
	if err != nil {
		trackError("check_availability", err)
		return nil, err
	}
	if !status.Bookable() {
		return &models.Availability{
			Available: false,
			Reason:    fmt.Sprintf("vehicle %s is %s", vehicleID, status),
		}, nil
	}

	live, err := m.store.FindLiveBookingsByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings for vehicle %s: %w", vehicleID, err)
	}

	var conflicts []models.Booking
	for _, b := range live {
		if b.Overlaps(start, end) {
			conflicts = append(conflicts, b)
		}
	}
	if len(conflicts) == 0 {
		return &models.Availability{
			Available: true,
			Reason:    "vehicle is available for the selected dates",
		}, nil
	}

	BookingConflicts.WithLabelValues("check_availability").Inc()
	return &models.Availability{
		Available:     false,
		Reason:        fmt.Sprintf("vehicle is already booked for %s", conflicts[0].Window()),
		ConflictCount: len(conflicts),
		Conflicts:     conflicts,
	}, nil
}

// CreateBooking reserves the vehicle and returns the new pending booking.
func (m *BookingManager) CreateBooking(ctx context.Context, actor models.Actor, req models.BookingRequest) (*models.Booking, error) {
	booking, err := m.createBooking(ctx, actor, req)
	trackError("create", err)
	return booking, err
}

func (m *BookingManager) createBooking(ctx context.Context, actor models.Actor, req models.BookingRequest) (*models.Booking, error) {
	if strings.TrimSpace(req.VehicleID) == "" {
		return nil, newError(KindInvalidRequest, "vehicleId is required")
	}
	if err := m.validateWindow(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}

	userID, userName := actor.ID, actor.Name
	if actor.IsManager() && req.UserID != "" {
		userID, userName = req.UserID, req.UserName
	} else if req.UserName != "" {
		userName = req.UserName
	}

	status, err := m.lookupVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if !status.Bookable() {
		return nil, newError(KindVehicleUnavailable, "vehicle %s is %s", req.VehicleID, status)
	}

	now := m.now()
	booking := &models.Booking{
		ID:                  uuid.NewString(),
		UserID:              userID,
		UserName:            userName,
		VehicleID:           req.VehicleID,
		VehicleName:         req.VehicleName,
		VehicleRegistration: req.VehicleRegistration,
		StartDate:           req.StartDate.UTC(),
		EndDate:             req.EndDate.UTC(),
		Status:              models.BookingStatusPending,
		Purpose:             req.Purpose,
		PickupLocation:      req.PickupLocation,
		DropoffLocation:     req.DropoffLocation,
		ContactNumber:       req.ContactNumber,
		Notes:               req.Notes,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	logger := m.logger.WithFields(log.Fields{
		"operation": "create",
		"bookingId": booking.ID,
		"vehicleId": booking.VehicleID,
	})

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err := m.store.InsertBooking(ctx, booking)
		if err == nil {
			BookingsCreated.Inc()
			logger.WithField("userId", booking.UserID).Info("Booking created")
			m.publish(ctx, EventBookingCreated, *booking, "", actor)
			return booking, nil
		}

		var overlap *database.OverlapError
		switch {
		case errors.As(err, &overlap):
			BookingConflicts.WithLabelValues("create").Inc()
			return nil, &BookingError{
				Kind:   KindVehicleUnavailable,
				Reason: fmt.Sprintf("vehicle is already booked for %s", overlap.Existing.Window()),
				Err:    err,
			}
		case errors.Is(err, database.ErrConcurrencyConflict):
			BookingConflicts.WithLabelValues("create").Inc()
			logger.WithField("attempt", attempt+1).Warn("Booking insert lost a race, retrying")
		default:
			return nil, fmt.Errorf("failed to create booking: %w", err)
		}
	}

	return nil, newError(KindVehicleUnavailable,
		"vehicle %s was booked concurrently for an overlapping window", req.VehicleID)
}

// Transition moves a booking to target if the lifecycle and the actor allow it.
func (m *BookingManager) Transition(ctx context.Context, bookingID string, target models.BookingStatus, actor models.Actor) (*models.Booking, error) {
	before, after, err := m.mutate(ctx, "transition", bookingID, func(b *models.Booking) error {
		if !models.CanTransition(b.Status, target) {
			return newError(KindInvalidTransition, "cannot move booking from %s to %s", b.Status, target)
		}
		if err := authorizeTransition(actor, b, target); err != nil {
			return err
		}
		b.Status = target
		return nil
	})
	if err != nil {
		trackError("transition", err)
		return nil, err
	}

	BookingTransitions.WithLabelValues(string(before.Status), string(after.Status)).Inc()
	m.logger.WithFields(log.Fields{
		"operation": "transition",
		"bookingId": bookingID,
		"from":      before.Status,
		"to":        after.Status,
		"actorId":   actor.ID,
	}).Info("Booking status changed")
	m.publish(ctx, EventBookingStatusChanged, *after, before.Status, actor)
	return after, nil
}

// AssignDriver links a driver, and optionally a route, to a pending or confirmed
// booking. A pending booking becomes confirmed.
func (m *BookingManager) AssignDriver(ctx context.Context, bookingID, driverID, routeID string, actor models.Actor) (*models.Booking, error) {
	before, after, err := m.assignDriver(ctx, bookingID, driverID, routeID, actor)
	if err != nil {
		trackError("assign_driver", err)
		return nil, err
	}

	if before.Status != after.Status {
		BookingTransitions.WithLabelValues(string(before.Status), string(after.Status)).Inc()
	}
	m.logger.WithFields(log.Fields{
		"operation": "assign_driver",
		"bookingId": bookingID,
		"driverId":  driverID,
		"routeId":   routeID,
	}).Info("Driver assigned to booking")
	m.publish(ctx, EventBookingDriverAssigned, *after, before.Status, actor)

	if routeID != "" {
		if err := m.routes.AssignRoute(ctx, routeID, driverID); err != nil {
			trackError("assign_driver", err)
			return after, fmt.Errorf("booking %s assigned but route %s could not be linked: %w", bookingID, routeID, err)
		}
	}
	return after, nil
}

func (m *BookingManager) assignDriver(ctx context.Context, bookingID, driverID, routeID string, actor models.Actor) (*models.Booking, *models.Booking, error) {
	if !actor.IsManager() {
		return nil, nil, newError(KindForbidden, "only fleet managers can assign drivers")
	}
	if strings.TrimSpace(driverID) == "" {
		return nil, nil, newError(KindInvalidRequest, "driverId is required")
	}

	current, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireAssignable(current); err != nil {
		return nil, nil, err
	}

	driver, err := m.drivers.FindDriver(ctx, driverID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, newError(KindDriverNotFound, "driver %s does not exist", driverID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up driver %s: %w", driverID, err)
	}
	if routeID != "" {
		exists, err := m.routes.RouteExists(ctx, routeID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up route %s: %w", routeID, err)
		}
		if !exists {
			return nil, nil, newError(KindRouteNotFound, "route %s does not exist", routeID)
		}
	}

	return m.mutate(ctx, "assign_driver", bookingID, func(b *models.Booking) error {
		if err := requireAssignable(b); err != nil {
			return err
		}
		b.AssignedDriverID = &driver.ID
		b.AssignedDriverName = driver.Name
		if routeID != "" {
			b.AssignedRouteID = &routeID
		}
		if b.Status == models.BookingStatusPending {
			b.Status = models.BookingStatusConfirmed
		}
		return nil
	})
}

func requireAssignable(b *models.Booking) error {
	if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed {
		return newError(KindInvalidBookingState, "cannot assign a driver to a %s booking", b.Status)
	}
	return nil
}

// UpdateBooking edits the details of a pending or confirmed booking. Moving the
// window re-runs the overlap check against the vehicle's other live bookings.
func (m *BookingManager) UpdateBooking(ctx context.Context, bookingID string, changes models.BookingChanges, actor models.Actor) (*models.Booking, error) {
	_, after, err := m.mutate(ctx, "update", bookingID, func(b *models.Booking) error {
		if !actor.IsManager() && actor.ID != b.UserID {
			return newError(KindForbidden, "booking %s belongs to another user", b.ID)
		}
		if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed {
			return newError(KindInvalidBookingState, "cannot edit a %s booking", b.Status)
		}

		if changes.StartDate != nil || changes.EndDate != nil {
			start, end := b.StartDate, b.EndDate
			if changes.StartDate != nil {
				start = changes.StartDate.UTC()
			}
			if changes.EndDate != nil {
				end = changes.EndDate.UTC()
			}
			if err := m.validateWindow(start, end); err != nil {
				return err
			}
			b.StartDate, b.EndDate = start, end
		}
		setIfPresent(&b.Purpose, changes.Purpose)
		setIfPresent(&b.PickupLocation, changes.PickupLocation)
		setIfPresent(&b.DropoffLocation, changes.DropoffLocation)
		setIfPresent(&b.ContactNumber, changes.ContactNumber)
		setIfPresent(&b.Notes, changes.Notes)
		return nil
	})
	if err != nil {
		trackError("update", err)
		return nil, err
	}

	m.logger.WithFields(log.Fields{"operation": "update", "bookingId": bookingID}).Info("Booking updated")
	m.publish(ctx, EventBookingUpdated, *after, "", actor)
	return after, nil
}

func setIfPresent(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// DeleteBooking physically removes a booking. Only administrators may do this;
// everyone else cancels.
func (m *BookingManager) DeleteBooking(ctx context.Context, bookingID string, actor models.Actor) error {
	if !actor.IsAdmin() {
		err := newError(KindForbidden, "only administrators can delete bookings")
		trackError("delete", err)
		return err
	}
	booking, err := m.load(ctx, bookingID)
	if err != nil {
		trackError("delete", err)
		return err
	}
	if err := m.store.DeleteBooking(ctx, bookingID); err != nil {
		err = m.storeError(bookingID, err)
		trackError("delete", err)
		return err
	}

	m.logger.WithFields(log.Fields{"operation": "delete", "bookingId": bookingID, "actorId": actor.ID}).Warn("Booking deleted")
	m.publish(ctx, EventBookingDeleted, *booking, booking.Status, actor)
	return nil
}

// GetBooking returns a booking visible to the actor.
func (m *BookingManager) GetBooking(ctx context.Context, bookingID string, actor models.Actor) (*models.Booking, error) {
	booking, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, booking) {
		return nil, newError(KindForbidden, "booking %s belongs to another user", bookingID)
	}
	return booking, nil
}

// ListBookings returns the bookings matching filter. Customers only see their
// own bookings and drivers only those assigned to them.
func (m *BookingManager) ListBookings(ctx context.Context, filter models.BookingFilter, actor models.Actor) ([]models.Booking, error) {
	switch actor.Role {
	case models.RoleFleetManager, models.RoleAdmin:
	case models.RoleDriver:
		if filter.DriverID == "" {
			filter.DriverID = actor.ID
		}
		if filter.DriverID != actor.ID {
			return nil, newError(KindForbidden, "drivers can only list their own assignments")
		}
	default:
		if filter.UserID == "" {
			filter.UserID = actor.ID
		}
		if filter.UserID != actor.ID {
			return nil, newError(KindForbidden, "customers can only list their own bookings")
		}
	}

	bookings, err := m.store.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ActiveBookingsForVehicle returns the live bookings of a vehicle that have not
// ended yet. Callers other than managers only see the reserved windows.
func (m *BookingManager) ActiveBookingsForVehicle(ctx context.Context, vehicleID string, actor models.Actor) ([]models.Booking, error) {
	now := m.now()
	bookings, err := m.store.Find(ctx, models.BookingFilter{
		VehicleID:   vehicleID,
		Statuses:    models.LiveStatuses,
		EndingAfter: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for vehicle %s: %w", vehicleID, err)
	}
	if actor.IsManager() {
		return bookings, nil
	}
	for i, b := range bookings {
		if b.UserID != actor.ID {
			bookings[i] = b.Redacted()
		}
	}
	return bookings, nil
}

// UpcomingBookings returns the user's pending and confirmed bookings that have not started.
func (m *BookingManager) UpcomingBookings(ctx context.Context, userID string, actor models.Actor) ([]models.Booking, error) {
	now := m.now()
	return m.ListBookings(ctx, models.BookingFilter{
		UserID:        userID,
		Statuses:      []models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed},
		StartingAfter: &now,
	}, actor)
}

// mutate loads the booking, applies fn to a copy and writes it back conditioned
// on the version read. A lost race reloads and re-validates once.
func (m *BookingManager) mutate(ctx context.Context, operation, bookingID string, fn func(*models.Booking) error) (*models.Booking, *models.Booking, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		current, err := m.load(ctx, bookingID)
		if err != nil {
			return nil, nil, err
		}

		next := *current
		if err := fn(&next); err != nil {
			return nil, nil, err
		}
		next.UpdatedAt = m.now()

		err = m.store.UpdateBooking(ctx, &next, current.Version)
		if err == nil {
			return current, &next, nil
		}
		if !errors.Is(err, database.ErrConcurrencyConflict) {
			return nil, nil, m.storeError(bookingID, err)
		}
		BookingConflicts.WithLabelValues(operation).Inc()
		m.logger.WithFields(log.Fields{
			"operation": operation,
			"bookingId": bookingID,
			"attempt":   attempt + 1,
		}).Warn("Booking changed concurrently, re-validating")
	}
	return nil, nil, newError(KindConcurrencyConflict, "booking %s was modified concurrently, retry the request", bookingID)
}

func (m *BookingManager) load(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := m.store.FindByID(ctx, bookingID)
	if err != nil {
		return nil, m.storeError(bookingID, err)
	}
	return booking, nil
}

func (m *BookingManager) storeError(bookingID string, err error) error {
	var overlap *database.OverlapError
	switch {
	case errors.Is(err, database.ErrNotFound):
		return newError(KindBookingNotFound, "booking %s does not exist", bookingID)
	case errors.As(err, &overlap):
		BookingConflicts.WithLabelValues("update").Inc()
		return &BookingError{
			Kind:   KindVehicleUnavailable,
			Reason: fmt.Sprintf("vehicle is already booked for %s", overlap.Existing.Window()),
			Err:    err,
		}
	default:
		return fmt.Errorf("booking store: %w", err)
	}
}

// validateWindow rejects bad intervals before any store access.
func (m *BookingManager) validateWindow(start, end time.Time) error {
	if !start.Before(end) {
		return newError(KindInvalidInterval, "startDate must be before endDate")
	}
	if start.Before(m.now()) {
		return newError(KindPastStartDate, "startDate cannot be in the past")
	}
	return nil
}

func (m *BookingManager) lookupVehicle(ctx context.Context, vehicleID string) (models.VehicleStatus, error) {
	exists, err := m.vehicles.VehicleExists(ctx, vehicleID)
	if err != nil {
		return "", fmt.Errorf("failed to look up vehicle %s: %w", vehicleID, err)
	}
	if !exists {
		return "", newError(KindVehicleNotFound, "vehicle %s does not exist", vehicleID)
	}
	status, err := m.vehicles.VehicleStatus(ctx, vehicleID)
	if errors.Is(err, database.ErrNotFound) {
		return "", newError(KindVehicleNotFound, "vehicle %s does not exist", vehicleID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up vehicle %s: %w", vehicleID, err)
	}
	return status, nil
}

func (m *BookingManager) publish(ctx context.Context, t EventType, b models.Booking, prev models.BookingStatus, actor models.Actor) {
	event := BookingEvent{
		Type:           t,
		Booking:        b,
		PreviousStatus: prev,
		ActorID:        actor.ID,
		OccurredAt:     m.now(),
	}
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.WithFields(log.Fields{"event": t, "bookingId": b.ID}).Warnf("Failed to publish booking event: %v", err)
	}
}

func authorizeTransition(actor models.Actor, b *models.Booking, target models.BookingStatus) error {
	if actor.IsManager() {
		return nil
	}
	switch target {
	case models.BookingStatusActive, models.BookingStatusCompleted:
		if actor.Role == models.RoleDriver && b.AssignedDriverID != nil && *b.AssignedDriverID == actor.ID {
			return nil
		}
		return newError(KindForbidden, "only the assigned driver or a fleet manager can %s this booking", verbFor(target))
	case models.BookingStatusCancelled:
		if actor.ID == b.UserID {
			return nil
		}
		return newError(KindForbidden, "only the customer or a fleet manager can cancel this booking")
	default:
		return newError(KindForbidden, "only fleet managers can confirm bookings")
	}
}

func verbFor(target models.BookingStatus) string {
	if target == models.BookingStatusActive {
		return "start"
	}
	return "complete"
}

func canView(actor models.Actor, b *models.Booking) bool {
	if actor.IsManager() || actor.ID == b.UserID {
		return true
	}
	return actor.Role == models.RoleDriver && b.AssignedDriverID != nil && *b.AssignedDriverID == actor.ID
}
