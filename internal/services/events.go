package services

import (
	"context"
	"errors"
	"time"

	"github.com/chachabrian/fleet-booking/internal/models"
)

type EventType string

const (
	EventBookingCreated        EventType = "booking_created"
	EventBookingStatusChanged  EventType = "booking_status_changed"
	EventBookingDriverAssigned EventType = "booking_driver_assigned"
	EventBookingUpdated        EventType = "booking_updated"
	EventBookingDeleted        EventType = "booking_deleted"
)

// BookingEvent describes a committed change to a booking.
type BookingEvent struct {
	Type           EventType            `json:"type"`
	Booking        models.Booking       `json:"booking"`
	PreviousStatus models.BookingStatus `json:"previousStatus,omitempty"`
	ActorID        string               `json:"actorId,omitempty"`
	OccurredAt     time.Time            `json:"occurredAt"`
	// Origin is the hub instance that relayed the event over Redis.
	Origin string `json:"origin,omitempty"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event BookingEvent) error
}

// MultiPublisher delivers every event to each publisher in turn.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event BookingEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, BookingEvent) error { return nil }
